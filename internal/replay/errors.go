package replay

import "errors"

var (
	ErrNoRecordsAvailable = errors.New("no recorded requests to replay")
	ErrInvalidURL         = errors.New("recorded url is invalid")
	ErrDispatchFailure    = errors.New("replay failed")
	ErrReplayInProgress   = errors.New("replay already in progress")
)

// kind maps an outcome error to a short metrics label.
func kind(err error) string {
	switch {
	case err == nil:
		return "success"
	case errors.Is(err, ErrNoRecordsAvailable):
		return "no_records"
	case errors.Is(err, ErrInvalidURL):
		return "invalid_url"
	case errors.Is(err, ErrReplayInProgress):
		return "in_progress"
	default:
		return "dispatch_failure"
	}
}
