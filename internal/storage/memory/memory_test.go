package memory

import (
	"testing"

	"github.com/ahrav/go-assess/internal/domain"
	"github.com/ahrav/go-assess/internal/storage/storagetest"
)

func TestStoreConformance(t *testing.T) {
	storagetest.Run(t, func(*testing.T) storagetest.Harness {
		s := New()
		return storagetest.Harness{
			Store:          s,
			SeedRespondent: func(_ *testing.T, p domain.RespondentProfile) { s.PutRespondent(p) },
		}
	})
}
