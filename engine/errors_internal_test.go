package engine

import (
	"fmt"
	"testing"

	"github.com/ahmadzakiakmal/timetrack/repository/models"
)

func TestDuplicateKeyMapsToValidation(t *testing.T) {
	err := wrapErr(fmt.Errorf("%w: categories owner+name", models.ErrDuplicate), "failed to create category")
	if KindOf(err) != KindValidation {
		t.Fatalf("kind = %s, want %s", KindOf(err), KindValidation)
	}
}
