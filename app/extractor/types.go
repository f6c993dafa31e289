package extractor

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
)

type ErrorKind string

const (
	KindMissingDataBlock   ErrorKind = "missing_data_block"
	KindMalformedDataBlock ErrorKind = "malformed_data_block"
)

type ParseError struct {
	Kind ErrorKind
	Err  error
}

func (e *ParseError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("parse error: %s", e.Kind)
	}
	return fmt.Sprintf("parse error: %s: %v", e.Kind, e.Err)
}

func (e *ParseError) Unwrap() error {
	return e.Err
}

func IsKind(err error, kind ErrorKind) bool {
	var pErr *ParseError
	return errors.As(err, &pErr) && pErr.Kind == kind
}

// nextData mirrors the part of the page's embedded state that carries search results.
type nextData struct {
	Props struct {
		PageProps struct {
			SearchData *struct {
				Ads []ad `json:"ads"`
			} `json:"searchData"`
		} `json:"pageProps"`
	} `json:"props"`
}

type ad struct {
	ListID               flexString      `json:"list_id"`
	Subject              string          `json:"subject"`
	Body                 string          `json:"body"`
	URL                  string          `json:"url"`
	Price                json.RawMessage `json:"price"`
	PriceCents           json.RawMessage `json:"price_cents"`
	FirstPublicationDate string          `json:"first_publication_date"`
	Attributes           []attribute     `json:"attributes"`
	Location             struct {
		City    string `json:"city"`
		Zipcode string `json:"zipcode"`
	} `json:"location"`
	Images struct {
		URLs     []string `json:"urls"`
		SmallURL string   `json:"small_url"`
	} `json:"images"`
}

type attribute struct {
	Key        string     `json:"key"`
	Value      flexString `json:"value"`
	ValueLabel flexString `json:"value_label"`
}

// flexString accepts JSON strings, numbers and booleans.
type flexString string

func (s *flexString) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, []byte("null")) {
		*s = ""
		return nil
	}
	if len(data) > 0 && data[0] == '"' {
		var str string
		if err := json.Unmarshal(data, &str); err != nil {
			return err
		}
		*s = flexString(str)
		return nil
	}
	*s = flexString(data)
	return nil
}
