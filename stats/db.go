package stats

import (
	"database/sql"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/graynk/stickerbot/dispatch"
)

type Period string

const (
	Daily   Period = "daily"
	Weekly  Period = "weekly"
	Monthly Period = "monthly"
)

func (p Period) Duration() (time.Duration, bool) {
	switch p {
	case Daily:
		return 24 * time.Hour, true
	case Weekly:
		return 7 * 24 * time.Hour, true
	case Monthly:
		return 30 * 24 * time.Hour, true
	}
	return 0, false
}

type Stat struct {
	Deliveries int
	Chats      int
	Animated   int
	Uploads    int
	Prompts    int
	Inserts    int
	Sends      int
}

type DeliveryDB struct {
	db     *sql.DB
	insert *sql.Stmt
	logger *zap.SugaredLogger
	now    func() time.Time
}

func InitDB(path string, logger *zap.SugaredLogger) (*DeliveryDB, error) {
	db, err := sql.Open("sqlite3", "file:"+path+"?cache=shared")
	if err != nil {
		return nil, errors.WithStack(err)
	}
	db.SetMaxOpenConns(1)

	sqlStmt := `
	create table if not exists deliveries(id integer not null primary key, conversation_id text, date integer, mode text, animated integer);
	create index if not exists deliveries_date on deliveries(date);
	`
	if _, err = db.Exec(sqlStmt); err != nil {
		db.Close()
		return nil, errors.WithStack(err)
	}
	stmt, err := db.Prepare(`insert into deliveries(conversation_id, date, mode, animated) values(?, ?, ?, ?);`)
	if err != nil {
		db.Close()
		return nil, errors.WithStack(err)
	}
	return &DeliveryDB{
		db:     db,
		insert: stmt,
		logger: logger,
		now:    time.Now,
	}, nil
}

// Record implements dispatch.Recorder. Failures are logged, never returned.
func (d *DeliveryDB) Record(conversationID string, mode dispatch.Mode, animated bool) {
	_, err := d.insert.Exec(conversationID, d.now().Unix(), string(mode), animated)
	if err != nil {
		d.logger.Errorw("could not save delivery stat", "conversation", conversationID, "error", err)
	}
}

func (d *DeliveryDB) GetStat(period Period) (Stat, error) {
	duration, ok := period.Duration()
	if !ok {
		return Stat{}, errors.Errorf("unknown period %q", period)
	}
	since := d.now().Add(-duration).Unix()
	var stat Stat
	row := d.db.QueryRow(`
	select count(*),
	       count(distinct conversation_id),
	       coalesce(sum(animated), 0),
	       coalesce(sum(mode = 'upload'), 0),
	       coalesce(sum(mode = 'prompt'), 0),
	       coalesce(sum(mode = 'insert'), 0),
	       coalesce(sum(mode = 'send'), 0)
	from deliveries where date >= ?;`, since)
	err := row.Scan(&stat.Deliveries, &stat.Chats, &stat.Animated, &stat.Uploads, &stat.Prompts, &stat.Inserts, &stat.Sends)
	return stat, errors.WithStack(err)
}

func (d *DeliveryDB) Close() {
	d.insert.Close()
	d.db.Close()
}
