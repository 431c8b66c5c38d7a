// Package store implements the persistence layer the scheduling engine
// queries: schedule items, calendar events, meeting links, collaborators,
// and stored external-calendar credentials.
package store

import (
	"database/sql"

	"github.com/karanmehta/agenda/internal/temporal"
)

// dateArg converts an optional Date into a driver argument.
func dateArg(d *temporal.Date) any {
	if d == nil {
		return nil
	}
	return *d
}

// timeArg converts an optional TimeOfDay into a driver argument.
func timeArg(t *temporal.TimeOfDay) any {
	if t == nil {
		return nil
	}
	return *t
}

func scanDate(ns sql.NullString) (*temporal.Date, error) {
	if !ns.Valid || ns.String == "" {
		return nil, nil
	}
	d, err := temporal.ParseDate(ns.String)
	if err != nil {
		return nil, err
	}
	return &d, nil
}

func scanTime(ns sql.NullString) (*temporal.TimeOfDay, error) {
	if !ns.Valid || ns.String == "" {
		return nil, nil
	}
	t, err := temporal.ParseTimeOfDay(ns.String)
	if err != nil {
		return nil, err
	}
	return &t, nil
}
