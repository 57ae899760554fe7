package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/igorribeiro98/al-tool/internal/domain"
)

// GetBase loads base metadata by id.
func (s *Store) GetBase(ctx context.Context, id int64) (domain.Base, error) {
	var b domain.Base
	var tipo string
	err := s.db.QueryRowContext(ctx,
		`SELECT id, nome, tipo, tabela_sqlite, subtype FROM bases WHERE id = ?`, id,
	).Scan(&b.ID, &b.Nome, &tipo, &b.TabelaSQLite, &b.Subtype)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Base{}, fmt.Errorf("%w: base %d", domain.ErrBaseNotFound, id)
	}
	if err != nil {
		return domain.Base{}, &domain.StorageError{Op: "GetBase", Err: err}
	}
	b.Tipo = domain.BaseType(tipo)
	return b, nil
}
