// Copyright 2025 AxonFlow
// SPDX-License-Identifier: BUSL-1.1
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package sqlstore

import (
	"context"
	"encoding/json"
	"errors"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"

	"creditlens/platform/orchestrator/aggregate"
	"creditlens/platform/orchestrator/history"
	"creditlens/platform/orchestrator/tools"
)

func sampleRecord() *history.RunRecord {
	res := &aggregate.Result{}
	credit := tools.Complete(tools.Credit, map[string]interface{}{"credit_score": "A"}, "ok", 0.89)
	res.Set(tools.Credit, &credit)
	started := time.Date(2025, 4, 1, 10, 0, 0, 0, time.UTC)
	return &history.RunRecord{
		ID:          "run-123",
		Strategy:    history.StrategyDeterministic,
		Status:      history.StatusSucceeded,
		Result:      res,
		Stats:       aggregate.GetStats(res),
		StartedAt:   started,
		CompletedAt: started.Add(2 * time.Second),
		DurationMs:  2000,
	}
}

func TestDialectFor(t *testing.T) {
	for _, driver := range []string{"postgres", "postgresql", "mysql"} {
		if _, err := DialectFor(driver); err != nil {
			t.Errorf("DialectFor(%q): %v", driver, err)
		}
	}
	if _, err := DialectFor("cassandra"); err == nil {
		t.Error("expected error for unsupported driver")
	}
}

func TestStore_Migrate(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock: %v", err)
	}
	defer db.Close()

	mock.ExpectExec(regexp.QuoteMeta(MySQL.CreateTable)).WillReturnResult(sqlmock.NewResult(0, 0))

	if err := New(db, MySQL).Migrate(context.Background()); err != nil {
		t.Fatalf("Migrate: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Error(err)
	}
}

func TestStore_Save(t *testing.T) {
	for _, dialect := range []Dialect{Postgres, MySQL} {
		t.Run(dialect.Driver, func(t *testing.T) {
			db, mock, err := sqlmock.New()
			if err != nil {
				t.Fatalf("sqlmock: %v", err)
			}
			defer db.Close()

			rec := sampleRecord()
			mock.ExpectExec(regexp.QuoteMeta(dialect.Upsert)).
				WithArgs(rec.ID, rec.Strategy, rec.Status, sqlmock.AnyArg(), "", rec.StartedAt, rec.DurationMs).
				WillReturnResult(sqlmock.NewResult(0, 1))

			if err := New(db, dialect).Save(context.Background(), rec); err != nil {
				t.Fatalf("Save: %v", err)
			}
			if err := mock.ExpectationsWereMet(); err != nil {
				t.Error(err)
			}
		})
	}
}

func TestStore_SaveRejectsEmptyID(t *testing.T) {
	db, _, _ := sqlmock.New()
	defer db.Close()
	if err := New(db, Postgres).Save(context.Background(), &history.RunRecord{}); err == nil {
		t.Error("expected error for empty id")
	}
}

func TestStore_Get(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock: %v", err)
	}
	defer db.Close()

	raw, _ := json.Marshal(sampleRecord())
	mock.ExpectQuery(regexp.QuoteMeta(Postgres.SelectOne)).
		WithArgs("run-123").
		WillReturnRows(sqlmock.NewRows([]string{"record"}).AddRow(string(raw)))

	rec, err := New(db, Postgres).Get(context.Background(), "run-123")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if rec.ID != "run-123" || rec.Stats.SuccessfulTools != 1 {
		t.Errorf("unexpected record: %+v", rec)
	}
	if got := rec.Result.Get(tools.Credit); got == nil || got.ExtractedData["credit_score"] != "A" {
		t.Errorf("credit slot not restored: %+v", got)
	}
	if rec.Result.Get(tools.Fraud) != nil {
		t.Error("fraud slot should stay null")
	}
}

func TestStore_GetNotFound(t *testing.T) {
	db, mock, _ := sqlmock.New()
	defer db.Close()

	mock.ExpectQuery(regexp.QuoteMeta(Postgres.SelectOne)).
		WithArgs("nope").
		WillReturnRows(sqlmock.NewRows([]string{"record"}))

	_, err := New(db, Postgres).Get(context.Background(), "nope")
	if !errors.Is(err, history.ErrRunNotFound) {
		t.Errorf("expected ErrRunNotFound, got %v", err)
	}
}

func TestStore_List(t *testing.T) {
	db, mock, _ := sqlmock.New()
	defer db.Close()

	a, _ := json.Marshal(&history.RunRecord{ID: "b", StartedAt: time.Unix(20, 0)})
	b, _ := json.Marshal(&history.RunRecord{ID: "a", StartedAt: time.Unix(10, 0)})
	mock.ExpectQuery(regexp.QuoteMeta(MySQL.SelectMany)).
		WithArgs(50).
		WillReturnRows(sqlmock.NewRows([]string{"record"}).AddRow(string(a)).AddRow(string(b)))

	list, err := New(db, MySQL).List(context.Background(), 0)
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(list) != 2 || list[0].ID != "b" {
		t.Errorf("unexpected list: %+v", list)
	}
}

func TestStore_ListQueryError(t *testing.T) {
	db, mock, _ := sqlmock.New()
	defer db.Close()

	mock.ExpectQuery(regexp.QuoteMeta(Postgres.SelectMany)).WillReturnError(errors.New("connection reset"))
	if _, err := New(db, Postgres).List(context.Background(), 5); err == nil {
		t.Error("expected error")
	}
}

func TestStore_HealthCheck(t *testing.T) {
	db, mock, _ := sqlmock.New(sqlmock.MonitorPingsOption(true))
	defer db.Close()

	mock.ExpectPing()
	status, err := New(db, Postgres).HealthCheck(context.Background())
	if err != nil || !status.Healthy {
		t.Errorf("expected healthy, got %+v %v", status, err)
	}
}
