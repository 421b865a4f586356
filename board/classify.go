package board

import "time"

// SoonHorizon is how far ahead of now a start or end counts as "soon".
const SoonHorizon = 24 * time.Hour

// Classify assigns t to exactly one bucket. The first matching rule wins:
// completed, long-term, overdue, in progress, upcoming, then not started.
// Completed and long-term tasks never carry deadline flags.
func Classify(t Task, now time.Time) Classification {
	if t.Completed {
		return Classification{Bucket: Completed}
	}
	if t.LongTerm {
		return Classification{Bucket: LongTerm}
	}

	horizon := now.Add(SoonHorizon)
	started := t.Start.Valid && !t.Start.At.After(now)

	c := Classification{
		IsOverdue:      t.End.Valid && t.End.At.Before(now),
		IsEndingSoon:   started && t.End.Valid && !t.End.At.Before(now) && !t.End.At.After(horizon),
		IsStartingSoon: t.Start.Valid && t.Start.At.After(now) && !t.Start.At.After(horizon),
	}

	switch {
	case c.IsOverdue:
		c.Bucket = Overdue
	case started && (!t.End.Valid || !t.End.At.Before(now)):
		c.Bucket = InProgress
	case c.IsStartingSoon:
		c.Bucket = Upcoming
	default:
		c.Bucket = NotStarted
	}
	return c
}
