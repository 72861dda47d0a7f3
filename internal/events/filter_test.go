package events

import (
	"testing"

	"github.com/google/uuid"

	"github.com/antonio12761/roxy-bar-sub000/internal/models"
)

func barEnvelope(name string) *models.Envelope {
	return &models.Envelope{
		Name: name,
		Payload: models.OrderNewPayload{
			OrderID: uuid.New(),
			Items: []models.EventItem{
				{ProductID: uuid.New(), ProductName: "Spritz", Quantity: 1, Station: models.StationBar},
			},
		},
	}
}

func TestRelevant(t *testing.T) {
	tests := []struct {
		name string
		role models.Role
		e    *models.Envelope
		want bool
	}{
		{
			name: "bartender sees bar items",
			role: models.RoleBartender,
			e:    barEnvelope(models.EventOrderNew),
			want: true,
		},
		{
			name: "kitchen does not see bar-only orders",
			role: models.RoleKitchen,
			e:    barEnvelope(models.EventOrderNew),
			want: false,
		},
		{
			name: "supervisor sees every station",
			role: models.RoleSupervisor,
			e:    barEnvelope(models.EventOrderNew),
			want: true,
		},
		{
			name: "waiter has no home station and sees everything subscribed",
			role: models.RoleWaiter,
			e:    barEnvelope(models.EventOrderNew),
			want: true,
		},
		{
			name: "cashier is not subscribed to order:new",
			role: models.RoleCashier,
			e:    barEnvelope(models.EventOrderNew),
			want: false,
		},
		{
			name: "cashier sees status changes",
			role: models.RoleCashier,
			e:    &models.Envelope{Name: models.EventOrderStatus, Payload: models.OrderStatusPayload{}},
			want: true,
		},
		{
			name: "unscoped payload reaches prep stations",
			role: models.RoleKitchen,
			e:    &models.Envelope{Name: models.EventSystemReset, Payload: models.SystemResetPayload{}},
			want: true,
		},
		{
			name: "unknown role sees nothing",
			role: models.Role("intern"),
			e:    barEnvelope(models.EventOrderNew),
			want: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Relevant(tt.role, tt.e); got != tt.want {
				t.Errorf("Relevant(%s, %s) = %v, want %v", tt.role, tt.e.Name, got, tt.want)
			}
		})
	}
}

func TestRelevantMixedStations(t *testing.T) {
	e := &models.Envelope{
		Name: models.EventOrderNew,
		Payload: models.OrderNewPayload{
			Items: []models.EventItem{
				{ProductName: "Spritz", Station: models.StationBar},
				{ProductName: "Burger", Station: models.StationKitchen},
			},
		},
	}

	for _, role := range []models.Role{models.RoleBartender, models.RoleKitchen} {
		if !Relevant(role, e) {
			t.Errorf("%s should see an order touching its station", role)
		}
	}
	if Relevant(models.RoleCounter, e) {
		t.Error("counter should not see an order with no counter items")
	}
}
