package sqlite

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/igorribeiro98/al-tool/internal/domain"
)

func TestGetBase_ReturnsMetadata(t *testing.T) {
	store := newTestStore(t)
	id := insertTestBase(t, store, "Base Contábil", "CONTABIL")

	b, err := store.GetBase(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, "Base Contábil", b.Nome)
	assert.Equal(t, domain.BaseTypeContabil, b.Tipo)
	assert.Equal(t, BaseTableName(id), b.TabelaSQLite)
}

func TestGetBase_NotFound(t *testing.T) {
	store := newTestStore(t)
	_, err := store.GetBase(context.Background(), 999)
	require.Error(t, err)
	assert.True(t, errors.Is(err, domain.ErrBaseNotFound))
}
