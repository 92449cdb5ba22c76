package tui

// RemoteData tracks one async slice of model state through its
// not-asked / loading / success / failure lifecycle.
type RemoteData[T any] struct {
	state remoteState
	value T
	err   string
}

type remoteState int

const (
	stateNotAsked remoteState = iota
	stateLoading
	stateSuccess
	stateFailure
)

func NotAsked[T any]() RemoteData[T] { return RemoteData[T]{state: stateNotAsked} }

func Loading[T any]() RemoteData[T] { return RemoteData[T]{state: stateLoading} }

func Success[T any](v T) RemoteData[T] { return RemoteData[T]{state: stateSuccess, value: v} }

func Failure[T any](msg string) RemoteData[T] { return RemoteData[T]{state: stateFailure, err: msg} }

func (r RemoteData[T]) IsNotAsked() bool { return r.state == stateNotAsked }
func (r RemoteData[T]) IsLoading() bool  { return r.state == stateLoading }
func (r RemoteData[T]) IsSuccess() bool  { return r.state == stateSuccess }
func (r RemoteData[T]) IsFailure() bool  { return r.state == stateFailure }

// Get returns the value and whether it is present.
func (r RemoteData[T]) Get() (T, bool) {
	return r.value, r.state == stateSuccess
}

// Err returns the failure message, empty unless failed.
func (r RemoteData[T]) Err() string { return r.err }
