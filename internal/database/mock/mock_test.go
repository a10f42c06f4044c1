package mock

import (
	"testing"

	"github.com/kozaktomas/photo-dedup/internal/database"
	"github.com/kozaktomas/photo-dedup/internal/database/cachetest"
)

func TestMockCacheConformance(t *testing.T) {
	cachetest.Run(t, func(t *testing.T) database.Cache {
		return NewMockCache()
	})
}
