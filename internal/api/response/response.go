// Package response writes the JSON envelopes shared by every API route: a
// "data" member on success, an "error" object otherwise.
package response

import (
	"encoding/json"
	"net/http"
)

// Problem is the body of every non-2xx answer. Clients branch on Code; Message
// carries the wrapped Go error for logs.
type Problem struct {
	Error   string `json:"error"`
	Message string `json:"message,omitempty"`
	Code    int    `json:"code"`
}

// envelope wraps a payload. NextCursor is only set on listings, and is empty on
// the last page.
type envelope struct {
	Data       interface{} `json:"data"`
	NextCursor *string     `json:"next_cursor,omitempty"`
}

// JSON writes data as-is with the given status code.
func JSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if data == nil {
		return
	}
	// Headers are already out; an encode failure can only be dropped.
	_ = json.NewEncoder(w).Encode(data)
}

// Success answers 200 with data in the envelope.
func Success(w http.ResponseWriter, data interface{}) {
	JSON(w, http.StatusOK, envelope{Data: data})
}

// Created answers 201 with data in the envelope.
func Created(w http.ResponseWriter, data interface{}) {
	JSON(w, http.StatusCreated, envelope{Data: data})
}

// Cursor answers 200 with one page of a listing.
func Cursor(w http.ResponseWriter, data interface{}, nextCursor string) {
	JSON(w, http.StatusOK, envelope{Data: data, NextCursor: &nextCursor})
}

// NoContent answers 204. Accepted snapshot uploads use it.
func NoContent(w http.ResponseWriter) {
	w.WriteHeader(http.StatusNoContent)
}

// Error answers status with err as a Problem.
func Error(w http.ResponseWriter, status int, err error) {
	JSON(w, status, Problem{
		Error:   http.StatusText(status),
		Message: err.Error(),
		Code:    status,
	})
}

func BadRequest(w http.ResponseWriter, err error) { Error(w, http.StatusBadRequest, err) }

func NotFound(w http.ResponseWriter, err error) { Error(w, http.StatusNotFound, err) }

// Conflict is the answer to a snapshot upload older than the stored version.
func Conflict(w http.ResponseWriter, err error) { Error(w, http.StatusConflict, err) }

func InternalError(w http.ResponseWriter, err error) { Error(w, http.StatusInternalServerError, err) }

// ServiceUnavailable reports a backing store that cannot be reached.
func ServiceUnavailable(w http.ResponseWriter, err error) {
	Error(w, http.StatusServiceUnavailable, err)
}
