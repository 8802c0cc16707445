package db

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestContainsPattern(t *testing.T) {
	assert.Equal(t, "%corp%", ContainsPattern("corp"))
	assert.Equal(t, "%50!%%", ContainsPattern("50%"))
	assert.Equal(t, "%a!_b%", ContainsPattern("a_b"))
	assert.Equal(t, "%hi!!%", ContainsPattern("hi!"))
}

func TestContainsPatternMatchesLiterally(t *testing.T) {
	conn, err := NewTest()
	require.NoError(t, err)

	type likeRow struct {
		ID   int
		Name string
	}
	require.NoError(t, conn.AutoMigrate(&likeRow{}))
	require.NoError(t, conn.Create(&[]likeRow{
		{ID: 1, Name: "Sale 50% off"},
		{ID: 2, Name: "Globex"},
		{ID: 3, Name: "snake_case!"},
	}).Error)

	count := func(needle string) int64 {
		var n int64
		require.NoError(t, conn.Model(&likeRow{}).
			Where("name LIKE ? ESCAPE '"+LikeEscape+"'", ContainsPattern(needle)).
			Count(&n).Error)
		return n
	}
	assert.Equal(t, int64(1), count("%"))
	assert.Equal(t, int64(1), count("_"))
	assert.Equal(t, int64(1), count("!"))
	assert.Equal(t, int64(3), count(""))
}
