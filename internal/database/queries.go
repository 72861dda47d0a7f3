package database

// Order queries
const (
	InsertOrderSQL = `
		INSERT INTO orders (id, tenant_id, table_id, table_number, type, status, total,
			customer_name, note, payment_pending, created_by, created_by_name, opened_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)`

	UpdateOrderSQL = `
		UPDATE orders SET status = $2, total = $3, note = $4, payment_pending = $5, closed_at = $6
		WHERE id = $1`

	DeleteOrderSQL = `DELETE FROM orders WHERE id = $1`

	SelectOrderSQL = `
		SELECT id, tenant_id, table_id, table_number, type, status, total,
			   customer_name, note, payment_pending, created_by, created_by_name, opened_at, closed_at
		FROM orders WHERE id = $1`

	SelectOrderByLineSQL = `
		SELECT o.id, o.tenant_id, o.table_id, o.table_number, o.type, o.status, o.total,
			   o.customer_name, o.note, o.payment_pending, o.created_by, o.created_by_name, o.opened_at, o.closed_at
		FROM orders o JOIN order_lines l ON l.order_id = o.id
		WHERE l.id = $1`

	SelectOpenOrdersOnTableSQL = `
		SELECT id, tenant_id, table_id, table_number, type, status, total,
			   customer_name, note, payment_pending, created_by, created_by_name, opened_at, closed_at
		FROM orders
		WHERE table_id = $1 AND status NOT IN ('PAID', 'CANCELLED')
		ORDER BY opened_at ASC`

	SelectRecentOrdersOnTableSQL = `
		SELECT id, tenant_id, table_id, table_number, type, status, total,
			   customer_name, note, payment_pending, created_by, created_by_name, opened_at, closed_at
		FROM orders
		WHERE table_id = $1 AND opened_at >= $2
		ORDER BY opened_at ASC`

	SelectOpenOrdersSQL = `
		SELECT id, tenant_id, table_id, table_number, type, status, total,
			   customer_name, note, payment_pending, created_by, created_by_name, opened_at, closed_at
		FROM orders
		WHERE tenant_id = $1 AND status NOT IN ('PAID', 'CANCELLED')
		ORDER BY opened_at ASC`
)

// Order line queries
const (
	InsertLineSQL = `
		INSERT INTO order_lines (id, order_id, product_id, product_name, quantity, unit_price,
			status, station, glass_count, note, started_at, ready_at, delivered_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)`

	UpdateLineSQL = `
		UPDATE order_lines SET quantity = $2, status = $3, glass_count = $4, note = $5,
			started_at = $6, ready_at = $7, delivered_at = $8
		WHERE id = $1`

	DeleteLineSQL = `DELETE FROM order_lines WHERE id = $1`

	SelectLinesForOrderSQL = `
		SELECT id, order_id, product_id, product_name, quantity, unit_price,
			   status, station, glass_count, note, started_at, ready_at, delivered_at
		FROM order_lines WHERE order_id = $1
		ORDER BY id`

	SelectLinesForOrdersSQL = `
		SELECT id, order_id, product_id, product_name, quantity, unit_price,
			   status, station, glass_count, note, started_at, ready_at, delivered_at
		FROM order_lines WHERE order_id = ANY($1)
		ORDER BY id`
)

// Product and table queries
const (
	SelectProductSQL = `
		SELECT id, name, category, station, price, available, reserved, requires_glass
		FROM products WHERE id = $1`

	SelectProductsForUpdateSQL = `
		SELECT id, name, category, station, price, available, reserved, requires_glass
		FROM products WHERE id = ANY($1)
		ORDER BY id
		FOR UPDATE`

	AdjustInventorySQL = `
		UPDATE products SET reserved = reserved + $2, available = available + $3
		WHERE id = $1`

	SelectTableByNumberSQL = `
		SELECT id, number, occupied FROM venue_tables
		WHERE tenant_id = $1 AND number = $2`

	SetTableOccupiedSQL = `UPDATE venue_tables SET occupied = $2 WHERE id = $1`
)

// Merge request queries
const (
	InsertMergeRequestSQL = `
		INSERT INTO merge_requests (id, tenant_id, order_id, table_id, table_number,
			requested_by, requester_name, status, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`

	InsertMergeRequestItemSQL = `
		INSERT INTO merge_request_items (request_id, product_id, product_name, quantity, unit_price, note)
		VALUES ($1, $2, $3, $4, $5, $6)`

	SelectMergeRequestSQL = `
		SELECT id, tenant_id, order_id, table_id, table_number, requested_by, requester_name,
			   status, resolved_by, resolved_at, reject_reason, created_at
		FROM merge_requests WHERE id = $1`

	SelectLatestPendingMergeRequestSQL = `
		SELECT id, tenant_id, order_id, table_id, table_number, requested_by, requester_name,
			   status, resolved_by, resolved_at, reject_reason, created_at
		FROM merge_requests
		WHERE order_id = $1 AND requested_by = $2 AND status = 'PENDING'
		ORDER BY created_at DESC
		LIMIT 1`

	SelectPendingMergeRequestsSQL = `
		SELECT id, tenant_id, order_id, table_id, table_number, requested_by, requester_name,
			   status, resolved_by, resolved_at, reject_reason, created_at
		FROM merge_requests
		WHERE tenant_id = $1 AND status = 'PENDING'
		ORDER BY created_at ASC`

	SelectMergeRequestItemsSQL = `
		SELECT product_id, product_name, quantity, unit_price, note
		FROM merge_request_items WHERE request_id = $1
		ORDER BY id`

	SelectMergeRequestItemsForSQL = `
		SELECT request_id, product_id, product_name, quantity, unit_price, note
		FROM merge_request_items WHERE request_id = ANY($1)
		ORDER BY id`

	ResolveMergeRequestSQL = `
		UPDATE merge_requests SET status = $2, resolved_by = $3, resolved_at = $4, reject_reason = $5
		WHERE id = $1 AND status = 'PENDING'`
)

// Status log queries
const (
	InsertStatusLogSQL = `
		INSERT INTO order_status_log (order_id, from_status, to_status, changed_by)
		VALUES ($1, $2, $3, $4)`
)
