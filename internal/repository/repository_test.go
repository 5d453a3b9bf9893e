package repository

import (
	"database/sql"
	"errors"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
)

func TestOperatorUnsupported(t *testing.T) {
	if !operatorUnsupported(&pgconn.PgError{Code: "42883"}) {
		t.Fatalf("expected undefined-function code to allow the fallback scan")
	}
	if !operatorUnsupported(&pgconn.PgError{Code: "0A000"}) {
		t.Fatalf("expected feature-not-supported code to allow the fallback scan")
	}
	// Un fallo transitorio de conexion debe propagarse, no disparar el scan.
	if operatorUnsupported(&pgconn.PgError{Code: "08006"}) {
		t.Fatalf("expected connection failure to propagate")
	}
	if operatorUnsupported(errors.New("context deadline exceeded")) {
		t.Fatalf("expected plain errors to propagate")
	}
}

// fakeMessageRows alimenta scanMessages con filas armadas a mano.
type fakeMessageRows struct {
	rows [][]interface{}
	idx  int
}

func (f *fakeMessageRows) Next() bool {
	if f.idx >= len(f.rows) {
		return false
	}
	f.idx++
	return true
}

func (f *fakeMessageRows) Scan(dest ...interface{}) error {
	row := f.rows[f.idx-1]
	for i, d := range dest {
		switch p := d.(type) {
		case *string:
			*p = row[i].(string)
		case *sql.NullString:
			*p = row[i].(sql.NullString)
		case *[]byte:
			if row[i] != nil {
				*p = row[i].([]byte)
			}
		case *time.Time:
			*p = row[i].(time.Time)
		case *sql.NullTime:
			*p = row[i].(sql.NullTime)
		}
	}
	return nil
}

func (f *fakeMessageRows) Err() error { return nil }

func (f *fakeMessageRows) Close() {}

func messageRow(id string, meta []byte) []interface{} {
	return []interface{}{
		id,
		"c1",
		"u1",
		"hola",
		sql.NullString{String: "https://cdn.example/im.png", Valid: true},
		sql.NullString{String: "image/png", Valid: true},
		meta,
		time.Now().UTC(),
		sql.NullTime{},
	}
}

func TestScanMessagesDecodesMediaMetadata(t *testing.T) {
	rows := &fakeMessageRows{rows: [][]interface{}{
		messageRow("m1", []byte(`{"width":"800"}`)),
	}}

	msgs, err := scanMessages(rows)
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if len(msgs) != 1 || msgs[0].Media == nil {
		t.Fatalf("expected 1 message with media, got %+v", msgs)
	}
	if msgs[0].Media.Metadata["width"] != "800" {
		t.Fatalf("expected decoded metadata, got %+v", msgs[0].Media.Metadata)
	}
}

func TestScanMessagesCorruptMetadataFails(t *testing.T) {
	rows := &fakeMessageRows{rows: [][]interface{}{
		messageRow("m1", []byte(`{not json`)),
	}}

	if _, err := scanMessages(rows); err == nil {
		t.Fatalf("expected corrupt media metadata to surface as a scan error")
	}
}
