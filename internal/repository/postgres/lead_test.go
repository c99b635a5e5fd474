package postgres

import (
	"context"
	"errors"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"

	"github.com/ignite/lead-engagement/internal/domain"
	"github.com/ignite/lead-engagement/internal/engagement"
)

func leadRows() *sqlmock.Rows {
	return sqlmock.NewRows([]string{
		"email", "send_count", "open_count", "human_open_count", "suspicious_open_count",
		"click_count", "reply_count", "last_sent_at", "last_open_at", "last_click_at", "last_reply_at",
		"score", "segment", "created_at", "updated_at",
	})
}

func TestInsertDedupFirstSighting(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock: %v", err)
	}
	defer db.Close()

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO lead_events_dedup")).
		WithArgs("evt-1", "a@b.co", "email_open").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	store := NewLeadStore(db)
	err = store.ProcessTx(context.Background(), func(ops engagement.TxOps) error {
		inserted, err := ops.InsertDedup("evt-1", "a@b.co", domain.EventOpen)
		if err != nil {
			return err
		}
		if !inserted {
			t.Error("first sighting should report inserted")
		}
		return nil
	})
	if err != nil {
		t.Fatalf("ProcessTx: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Error(err)
	}
}

func TestInsertDedupDuplicate(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock: %v", err)
	}
	defer db.Close()

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO lead_events_dedup")).
		WithArgs("evt-1", "a@b.co", "email_open").
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectCommit()

	store := NewLeadStore(db)
	err = store.ProcessTx(context.Background(), func(ops engagement.TxOps) error {
		inserted, err := ops.InsertDedup("evt-1", "a@b.co", domain.EventOpen)
		if err != nil {
			return err
		}
		if inserted {
			t.Error("conflicting insert should report not inserted")
		}
		return nil
	})
	if err != nil {
		t.Fatalf("ProcessTx: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Error(err)
	}
}

func TestProcessTxRollsBackOnError(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock: %v", err)
	}
	defer db.Close()

	mock.ExpectBegin()
	mock.ExpectRollback()

	boom := errors.New("boom")
	store := NewLeadStore(db)
	err = store.ProcessTx(context.Background(), func(ops engagement.TxOps) error {
		return boom
	})
	if !errors.Is(err, boom) {
		t.Errorf("err = %v, want boom", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Error(err)
	}
}

func TestGetLeadForUpdateLocksRow(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock: %v", err)
	}
	defer db.Close()

	now := time.Now()
	mock.ExpectBegin()
	mock.ExpectQuery("SELECT .+ FROM leads WHERE email = .+ FOR UPDATE").
		WithArgs("a@b.co").
		WillReturnRows(leadRows().AddRow(
			"a@b.co", 2, 1, 1, 0, 0, 0, now, now, nil, nil, 1, "zombie", now, now,
		))
	mock.ExpectCommit()

	store := NewLeadStore(db)
	err = store.ProcessTx(context.Background(), func(ops engagement.TxOps) error {
		lead, found, err := ops.GetLeadForUpdate("a@b.co")
		if err != nil {
			return err
		}
		if !found {
			t.Fatal("lead should be found")
		}
		if lead.SendCount != 2 || lead.Segment != domain.SegmentZombie {
			t.Errorf("unexpected lead: %+v", lead)
		}
		return nil
	})
	if err != nil {
		t.Fatalf("ProcessTx: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Error(err)
	}
}

func TestApplyLeadUpdateSingleStatement(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock: %v", err)
	}
	defer db.Close()

	at := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	segment := domain.SegmentDormido

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta(
		"UPDATE leads SET open_count = open_count + $2, human_open_count = human_open_count + $3, "+
			"score = score + $4, last_open_at = GREATEST(COALESCE(last_open_at, to_timestamp(0)), $5), "+
			"segment = $6, updated_at = NOW() WHERE email = $1")).
		WithArgs("a@b.co", 1, 1, 1, at, "dormido").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	store := NewLeadStore(db)
	err = store.ProcessTx(context.Background(), func(ops engagement.TxOps) error {
		return ops.ApplyLeadUpdate("a@b.co", &engagement.LeadUpdate{
			OpenDelta:      1,
			HumanOpenDelta: 1,
			ScoreDelta:     1,
			LastOpenAt:     &at,
			Segment:        &segment,
		})
	})
	if err != nil {
		t.Fatalf("ProcessTx: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Error(err)
	}
}

func TestApplyLeadUpdateZeroIsNoop(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock: %v", err)
	}
	defer db.Close()

	mock.ExpectBegin()
	mock.ExpectCommit()

	store := NewLeadStore(db)
	err = store.ProcessTx(context.Background(), func(ops engagement.TxOps) error {
		return ops.ApplyLeadUpdate("a@b.co", &engagement.LeadUpdate{})
	})
	if err != nil {
		t.Fatalf("ProcessTx: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Error(err)
	}
}

func TestGetLeadNotFound(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock: %v", err)
	}
	defer db.Close()

	mock.ExpectQuery("SELECT .+ FROM leads WHERE email = ").
		WithArgs("missing@b.co").
		WillReturnRows(leadRows())

	store := NewLeadStore(db)
	_, err = store.Get(context.Background(), "missing@b.co")
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("err = %v, want ErrNotFound", err)
	}
}
