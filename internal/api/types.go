package api

import "time"

// Archive is the remote archive resource: a named collection of files
// submitted as one logical upload unit.
type Archive struct {
	URL       string    `json:"url"`
	Key       string    `json:"key"`
	Size      int64     `json:"size"`
	Title     string    `json:"title"`
	Created   time.Time `json:"created"`
	UploadURL string    `json:"upload_url"`
}

// Upload is the remote upload resource tracking one archive's
// transfer. Status transitions are server-authoritative.
type Upload struct {
	URL        string    `json:"url"`
	ArchiveURL string    `json:"archive"`
	Created    time.Time `json:"created"`
	Status     string    `json:"status"`
	Comment    string    `json:"comment"`
	S3         S3Info    `json:"s3"`
}

// S3Info is the time-limited storage session attached to an upload:
// scoped credentials for one bucket/prefix. The triple must be renewed
// (by re-fetching the Upload) before TokenExpiration.
type S3Info struct {
	Bucket          string    `json:"bucket"`
	Prefix          string    `json:"prefix"`
	TokenExpiration time.Time `json:"token_expiration"`
	TokenSession    string    `json:"token_session"`
	TokenUID        string    `json:"token_uid"`
	TokenSecretKey  string    `json:"token_secret_key"`
	TokenAccessKey  string    `json:"token_access_key"`
}

// User is the authenticated account, fetched to validate credentials.
type User struct {
	ID          int       `json:"id"`
	Email       string    `json:"email"`
	DisplayName string    `json:"displayname"`
	DateJoined  time.Time `json:"date_joined"`
}

type archivePostData struct {
	Size  int64  `json:"size"`
	Title string `json:"title"`
}

type statusPatchData struct {
	Status string `json:"status"`
}

// listPage is the envelope the control plane wraps collections in.
type listPage[T any] struct {
	Count   int `json:"count"`
	Results []T `json:"results"`
}
