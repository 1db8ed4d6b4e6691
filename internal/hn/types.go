package hn

import (
	"encoding/json"
	"fmt"
	"time"
)

// Kind is the item type reported by the remote API.
type Kind string

// Item kinds.
const (
	KindStory   Kind = "story"
	KindJob     Kind = "job"
	KindPoll    Kind = "poll"
	KindPollOpt Kind = "pollopt"
	KindComment Kind = "comment"
)

// IsStoryLike reports whether items of this kind are persisted as story rows.
func (k Kind) IsStoryLike() bool {
	return k == KindStory || k == KindJob || k == KindPoll
}

// Header carries the fields every item variant shares.
type Header struct {
	ID      int64     `json:"id"`
	By      string    `json:"by,omitempty"`
	Time    time.Time `json:"time"`
	Deleted bool      `json:"deleted,omitempty"`
	Dead    bool      `json:"dead,omitempty"`
	Kids    []int64   `json:"kids,omitempty"`
}

// Meta returns the shared header. Promoted to every variant through embedding.
func (h Header) Meta() Header { return h }

// HasAuthor reports whether the item records an author handle.
func (h Header) HasAuthor() bool { return h.By != "" }

// Item is the closed set of item variants: *Story, *Job, *Poll, *PollOpt and *Comment.
type Item interface {
	Kind() Kind
	Meta() Header
	item()
}

// Story is a link or text submission.
type Story struct {
	Header
	Title       string `json:"title"`
	URL         string `json:"url,omitempty"`
	Text        string `json:"text,omitempty"`
	Score       int    `json:"score"`
	Descendants int    `json:"descendants"`
}

// Job is a job posting. Jobs never carry comments.
type Job struct {
	Header
	Title string `json:"title"`
	URL   string `json:"url,omitempty"`
	Text  string `json:"text,omitempty"`
	Score int    `json:"score"`
}

// Poll is a story with a set of options.
type Poll struct {
	Header
	Title       string  `json:"title"`
	Text        string  `json:"text,omitempty"`
	Score       int     `json:"score"`
	Descendants int     `json:"descendants"`
	Parts       []int64 `json:"parts,omitempty"`
}

// PollOpt is a single option of a poll.
type PollOpt struct {
	Header
	Poll  int64  `json:"poll"`
	Text  string `json:"text,omitempty"`
	Score int    `json:"score"`
}

// Comment is a reply to a story, poll or another comment.
type Comment struct {
	Header
	Parent int64  `json:"parent"`
	Text   string `json:"text,omitempty"`
}

func (*Story) Kind() Kind   { return KindStory }
func (*Job) Kind() Kind     { return KindJob }
func (*Poll) Kind() Kind    { return KindPoll }
func (*PollOpt) Kind() Kind { return KindPollOpt }
func (*Comment) Kind() Kind { return KindComment }

func (*Story) item()   {}
func (*Job) item()     {}
func (*Poll) item()    {}
func (*PollOpt) item() {}
func (*Comment) item() {}

// User is a remote user profile.
type User struct {
	Handle  string
	Created time.Time
	Karma   int
	About   string
}

// wireItem mirrors the untyped JSON payload of /item/<id>.json.
type wireItem struct {
	ID          int64   `json:"id"`
	Type        string  `json:"type"`
	By          string  `json:"by"`
	Time        int64   `json:"time"`
	Deleted     bool    `json:"deleted"`
	Dead        bool    `json:"dead"`
	Kids        []int64 `json:"kids"`
	Parent      int64   `json:"parent"`
	Poll        int64   `json:"poll"`
	Parts       []int64 `json:"parts"`
	Text        string  `json:"text"`
	URL         string  `json:"url"`
	Title       string  `json:"title"`
	Score       int     `json:"score"`
	Descendants int     `json:"descendants"`
}

type wireUser struct {
	ID      string `json:"id"`
	Created int64  `json:"created"`
	Karma   int    `json:"karma"`
	About   string `json:"about"`
}

// DecodeItem converts a raw item payload into its variant. A JSON null decodes to ErrNotFound.
func DecodeItem(data []byte) (Item, error) {
	var w *wireItem
	if err := json.Unmarshal(data, &w); err != nil {
		return nil, fmt.Errorf("decode item: %w", err)
	}
	if w == nil {
		return nil, ErrNotFound
	}
	h := Header{
		ID:      w.ID,
		By:      w.By,
		Time:    time.Unix(w.Time, 0).UTC(),
		Deleted: w.Deleted,
		Dead:    w.Dead,
		Kids:    w.Kids,
	}
	switch Kind(w.Type) {
	case KindStory:
		return &Story{Header: h, Title: w.Title, URL: w.URL, Text: w.Text, Score: w.Score, Descendants: w.Descendants}, nil
	case KindJob:
		return &Job{Header: h, Title: w.Title, URL: w.URL, Text: w.Text, Score: w.Score}, nil
	case KindPoll:
		return &Poll{Header: h, Title: w.Title, Text: w.Text, Score: w.Score, Descendants: w.Descendants, Parts: w.Parts}, nil
	case KindPollOpt:
		return &PollOpt{Header: h, Poll: w.Poll, Text: w.Text, Score: w.Score}, nil
	case KindComment:
		return &Comment{Header: h, Parent: w.Parent, Text: w.Text}, nil
	default:
		return nil, fmt.Errorf("decode item %d: unknown type %q", w.ID, w.Type)
	}
}

// DecodeUser converts a raw user payload. A JSON null decodes to ErrNotFound.
func DecodeUser(data []byte) (User, error) {
	var w *wireUser
	if err := json.Unmarshal(data, &w); err != nil {
		return User{}, fmt.Errorf("decode user: %w", err)
	}
	if w == nil {
		return User{}, ErrNotFound
	}
	return User{
		Handle:  w.ID,
		Created: time.Unix(w.Created, 0).UTC(),
		Karma:   w.Karma,
		About:   w.About,
	}, nil
}
