package postgres

// SQL for the rollup bucket store. Bucket keys are the fixed-width encoded
// timestamp keys, so BETWEEN-style text comparisons scan buckets in
// chronological order.

const (
	querySelectTradeForUpdate = `
		SELECT open_time, close_time, open_rate, close_rate, high_rate, low_rate,
		       volume_numerator, volume_base, volume_counter, trade_count
		FROM trade_rollups
		WHERE pair = $1 AND bucket_key = $2
		FOR UPDATE
	`

	queryUpsertTrade = `
		INSERT INTO trade_rollups (
			partition_id, pair, bucket_key, open_time, close_time,
			open_rate, close_rate, high_rate, low_rate,
			volume_numerator, volume_base, volume_counter, trade_count, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
		ON CONFLICT (pair, bucket_key) DO UPDATE SET
			open_time        = EXCLUDED.open_time,
			close_time       = EXCLUDED.close_time,
			open_rate        = EXCLUDED.open_rate,
			close_rate       = EXCLUDED.close_rate,
			high_rate        = EXCLUDED.high_rate,
			low_rate         = EXCLUDED.low_rate,
			volume_numerator = EXCLUDED.volume_numerator,
			volume_base      = EXCLUDED.volume_base,
			volume_counter   = EXCLUDED.volume_counter,
			trade_count      = EXCLUDED.trade_count,
			updated_at       = EXCLUDED.updated_at
	`

	queryScanTrades = `
		SELECT bucket_key, open_time, close_time, open_rate, close_rate,
		       high_rate, low_rate, volume_numerator, volume_base,
		       volume_counter, trade_count
		FROM trade_rollups
		WHERE pair = $1 AND bucket_key >= $2 AND bucket_key < $3
		ORDER BY bucket_key ASC
	`

	querySelectBalanceForUpdate = `
		SELECT latest, latest_time, change_sum, change_count
		FROM balance_rollups
		WHERE subject = $1 AND currency = $2 AND counterparty = $3 AND bucket_key = $4
		FOR UPDATE
	`

	queryUpsertBalance = `
		INSERT INTO balance_rollups (
			partition_id, subject, currency, counterparty, bucket_key,
			latest, latest_time, change_sum, change_count, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		ON CONFLICT (subject, currency, counterparty, bucket_key) DO UPDATE SET
			latest       = EXCLUDED.latest,
			latest_time  = EXCLUDED.latest_time,
			change_sum   = EXCLUDED.change_sum,
			change_count = EXCLUDED.change_count,
			updated_at   = EXCLUDED.updated_at
	`

	queryScanBalances = `
		SELECT counterparty, bucket_key, latest, latest_time, change_sum, change_count
		FROM balance_rollups
		WHERE subject = $1 AND currency = $2 AND bucket_key >= $3 AND bucket_key < $4
		ORDER BY bucket_key ASC, counterparty ASC
	`

	querySelectCounterForUpdate = `
		SELECT event_count, last_value, latest_time
		FROM counter_rollups
		WHERE kind = $1 AND bucket_key = $2
		FOR UPDATE
	`

	queryUpsertCounter = `
		INSERT INTO counter_rollups (
			partition_id, kind, bucket_key, event_count, last_value, latest_time, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (kind, bucket_key) DO UPDATE SET
			event_count = EXCLUDED.event_count,
			last_value  = EXCLUDED.last_value,
			latest_time = EXCLUDED.latest_time,
			updated_at  = EXCLUDED.updated_at
	`

	queryScanCounters = `
		SELECT bucket_key, event_count, last_value, latest_time
		FROM counter_rollups
		WHERE kind = $1 AND bucket_key >= $2 AND bucket_key < $3
		ORDER BY bucket_key ASC
	`

	queryReadCheckpoint = `
		SELECT last_sequence FROM import_checkpoints WHERE stream = $1
	`

	queryWriteCheckpoint = `
		INSERT INTO import_checkpoints (stream, last_sequence, updated_at)
		VALUES ($1, $2, $3)
		ON CONFLICT (stream) DO UPDATE SET
			last_sequence = EXCLUDED.last_sequence,
			updated_at    = EXCLUDED.updated_at
	`
)
