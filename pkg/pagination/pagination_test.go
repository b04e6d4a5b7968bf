package pagination

import (
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/storefront-backend/pkg/db/dbtest"
	"github.com/angelmondragon/storefront-backend/pkg/db/models"
)

func TestCursorEncodeDecode(t *testing.T) {
	want := Cursor{CreatedAt: time.Date(2026, 3, 1, 10, 0, 0, 123, time.FixedZone("ICT", 7*3600)), ID: uuid.New()}
	got, err := Decode(want.Encode())
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if !got.CreatedAt.Equal(want.CreatedAt) || got.ID != want.ID {
		t.Fatalf("unexpected cursor %+v", got)
	}
}

func TestDecodeRejectsForeignCursors(t *testing.T) {
	if c, err := Decode("  "); err != nil || c != nil {
		t.Fatalf("blank cursor must be nil, got %+v %v", c, err)
	}
	for _, raw := range []string{"%%%", "bm90LWpzb24", "e30"} {
		if _, err := Decode(raw); !errors.Is(err, ErrInvalidCursor) {
			t.Fatalf("%q: expected ErrInvalidCursor, got %v", raw, err)
		}
	}
}

func TestNormalizeLimit(t *testing.T) {
	cases := map[int]int{0: DefaultLimit, -3: DefaultLimit, 5: 5, MaxLimit + 1: MaxLimit}
	for in, want := range cases {
		if got := NormalizeLimit(in); got != want {
			t.Fatalf("NormalizeLimit(%d) = %d, want %d", in, got, want)
		}
	}
}

func TestApplyWalksPagesNewestFirst(t *testing.T) {
	conn := dbtest.Open(t)
	userID := uuid.New()
	base := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	sameInstant := base.Add(time.Hour)
	for i, at := range []time.Time{base, base.Add(time.Minute), sameInstant, sameInstant, base.Add(2 * time.Hour)} {
		order := models.Order{UserID: &userID, CreatedAt: at, Total: int64(i)}
		if err := conn.Create(&order).Error; err != nil {
			t.Fatalf("seed order: %v", err)
		}
	}

	seen := map[uuid.UUID]bool{}
	params := Params{Limit: 2}
	for pages := 0; ; pages++ {
		if pages > 3 {
			t.Fatalf("pagination did not terminate")
		}
		query, err := params.Apply(conn.Model(&models.Order{}).Where("user_id = ?", userID))
		if err != nil {
			t.Fatalf("apply: %v", err)
		}
		var rows []models.Order
		if err := query.Find(&rows).Error; err != nil {
			t.Fatalf("find: %v", err)
		}
		page, next := Page(rows, params, func(o models.Order) Cursor {
			return Cursor{CreatedAt: o.CreatedAt, ID: o.ID}
		})
		for i, o := range page {
			if seen[o.ID] {
				t.Fatalf("order %s returned twice", o.ID)
			}
			seen[o.ID] = true
			if i > 0 && o.CreatedAt.After(page[i-1].CreatedAt) {
				t.Fatalf("page not ordered newest first")
			}
		}
		if next == "" {
			break
		}
		params.Cursor = next
	}
	if len(seen) != 5 {
		t.Fatalf("expected all 5 orders across pages, got %d", len(seen))
	}
}

func TestApplyRejectsBadCursor(t *testing.T) {
	conn := dbtest.Open(t)
	if _, err := (Params{Cursor: "garbage!"}).Apply(conn); !errors.Is(err, ErrInvalidCursor) {
		t.Fatalf("expected ErrInvalidCursor, got %v", err)
	}
}
