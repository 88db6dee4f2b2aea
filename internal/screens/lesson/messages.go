package lesson

import "time"

// opDoneMsg is sent when a session operation has finished.
type opDoneMsg struct {
	Op  string
	Err error
}

// toastExpiredMsg hides the toast with the given id.
type toastExpiredMsg struct {
	ID int
}

const toastDuration = 4 * time.Second
