package collatex

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/FocuswithJustin/JuniperStemma/core/collation"
)

const tableJSON = `{"witnesses":["w1","w2"],"table":[
  [[{"_sigil":"w1","t":"the ","n":"the"}],[{"_sigil":"w2","t":"the ","n":"the"}]],
  [[{"_sigil":"w1","t":"cat","n":"cat"}],null]
]}`

func TestAlign(t *testing.T) {
	var got collateRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/collate" {
			t.Errorf("unexpected request %s %s", r.Method, r.URL.Path)
		}
		if accept := r.Header.Get("Accept"); accept != "application/json" {
			t.Errorf("Accept = %q", accept)
		}
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			t.Errorf("decode request: %v", err)
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(tableJSON))
	}))
	defer srv.Close()

	witnesses := []collation.Witness{{ID: "w1", Content: "the cat"}, {ID: "w2", Content: "the"}}
	table, err := New(srv.URL+"/").Align(context.Background(), witnesses, collation.DefaultOptions())
	if err != nil {
		t.Fatalf("Align() error = %v", err)
	}

	want := collateRequest{
		Witnesses:       witnesses,
		Algorithm:       "dekker",
		TokenComparator: comparator{Type: "levenshtein", Distance: 1},
		Joined:          false,
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("request mismatch (-want +got):\n%s", diff)
	}
	if len(table.Columns) != 2 || !table.Columns[1][1].Empty() {
		t.Errorf("unexpected table %+v", table)
	}
}

func TestNewRequestOptions(t *testing.T) {
	req := newRequest(nil, collation.Options{Segmentation: true})
	if req.TokenComparator.Type != "equality" || !req.Joined {
		t.Errorf("newRequest = %+v", req)
	}
}

func TestAlignErrors(t *testing.T) {
	tests := []struct {
		name    string
		handler http.HandlerFunc
		check   func(error) bool
	}{
		{
			name: "server error",
			handler: func(w http.ResponseWriter, r *http.Request) {
				http.Error(w, "boom", http.StatusInternalServerError)
			},
			check: func(err error) bool {
				var se *StatusError
				return errors.As(err, &se) && se.Code == http.StatusInternalServerError && se.Body == "boom"
			},
		},
		{
			name: "bad body",
			handler: func(w http.ResponseWriter, r *http.Request) {
				_, _ = w.Write([]byte("<html>"))
			},
			check: func(err error) bool { return err != nil },
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(tt.handler)
			defer srv.Close()
			_, err := New(srv.URL).Align(context.Background(), []collation.Witness{{ID: "w1"}, {ID: "w2"}}, collation.DefaultOptions())
			if !tt.check(err) {
				t.Errorf("unexpected error %v", err)
			}
		})
	}
}

func TestAlignTimeout(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	defer srv.Close()
	defer close(release)

	_, err := New(srv.URL).WithTimeout(20*time.Millisecond).Align(context.Background(), nil, collation.DefaultOptions())
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("Align() error = %v, want deadline exceeded", err)
	}
}
