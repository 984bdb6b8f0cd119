package repository

import "context"

// Truncate empties game_log so integration runs start clean.
func (l *PostgresLog) Truncate(ctx context.Context) error {
	_, err := l.pool.Exec(ctx, `TRUNCATE game_log RESTART IDENTITY`)
	return err
}
