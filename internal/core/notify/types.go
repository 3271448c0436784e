package notify

// Kind identifies a lifecycle event pushed to a client.
type Kind string

const (
	KindProgress Kind = "progress"
	KindWarning  Kind = "warning"
	KindDone     Kind = "done"
	KindError    Kind = "error"
)

// Event is the JSON envelope written to a notification channel. A job emits
// any number of progress/warning events followed by exactly one of done/error.
type Event struct {
	Type       Kind     `json:"type"`
	Percent    *float64 `json:"percent,omitempty"`
	Detail     string   `json:"detail,omitempty"`
	DownloadID string   `json:"download_id,omitempty"`
	URL        string   `json:"url,omitempty"`
	Filename   string   `json:"filename,omitempty"`
	Size       int64    `json:"size,omitempty"`
	StorageKey string   `json:"storage_key,omitempty"`
}

// Terminal reports whether the event ends a job's session.
func (e Event) Terminal() bool {
	return e.Type == KindDone || e.Type == KindError
}

// Progress builds a progress event. The pointer keeps percent=0 on the wire.
func Progress(percent float64) Event {
	return Event{Type: KindProgress, Percent: &percent}
}

func Warning(detail string) Event {
	return Event{Type: KindWarning, Detail: detail}
}

type DoneResult struct {
	DownloadID string
	URL        string
	Filename   string
	Size       int64
	StorageKey string
}

func Done(res DoneResult) Event {
	return Event{
		Type:       KindDone,
		DownloadID: res.DownloadID,
		URL:        res.URL,
		Filename:   res.Filename,
		Size:       res.Size,
		StorageKey: res.StorageKey,
	}
}

func Error(detail string) Event {
	return Event{Type: KindError, Detail: detail}
}
