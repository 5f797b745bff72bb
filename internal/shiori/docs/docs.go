// Package docs provides the document-side capabilities of the engine: raw
// text of stored documents, listing of document keys, and the structured
// project record of an affair.
//
// Document keys are slash-separated paths such as
// "affaires/A24-0001/devis.pdf". Text extraction from PDFs and spreadsheets
// happens elsewhere; this package only consumes its output.
package docs

import (
	"context"
	"errors"
	"path"
	"strings"
)

// ErrDocumentRead wraps every failure to read a document's text. Callers
// treat the document as unreadable and carry on.
var ErrDocumentRead = errors.New("docs: document unreadable")

// Supported document extensions, in file matcher priority order.
const (
	ExtPDF = "pdf"
	ExtTXT = "txt"
	ExtCSV = "csv"
)

// Extensions lists the supported document types in matcher priority order.
var Extensions = []string{ExtPDF, ExtTXT, ExtCSV}

// TextProvider returns the extracted text of a document.
type TextProvider interface {
	DocumentText(ctx context.Context, key string) (string, error)
}

// Lister enumerates document keys under a prefix. ext is an extension
// without the dot; only keys with that extension are returned. An empty
// prefix lists the whole corpus. Keys come back in a stable order.
type Lister interface {
	ListKeys(ctx context.Context, prefix, ext string) ([]string, error)
}

// ProjectRecord is the structured view of an affair used by the contact
// short-circuit and the affair summary.
type ProjectRecord struct {
	Client         string `json:"client"`
	Porteur        string `json:"porteur"`
	Referent       string `json:"referent"`
	ContactMOAMOEG string `json:"contact_moa_moeg"`
	Guichet        string `json:"guichet"`
	Titre          string `json:"titre"`
	Etat           string `json:"etat"`
	TypeDemande    string `json:"type_demande"`
	Description    string `json:"description"`
}

// HasContact reports whether any contact field is filled in.
func (r *ProjectRecord) HasContact() bool {
	if r == nil {
		return false
	}
	for _, v := range []string{r.Client, r.Porteur, r.Referent, r.ContactMOAMOEG, r.Guichet} {
		if strings.TrimSpace(v) != "" {
			return true
		}
	}
	return false
}

// RecordProvider looks up the project record of an affair. An unknown
// affair yields (nil, nil).
type RecordProvider interface {
	ProjectRecord(ctx context.Context, affairID string) (*ProjectRecord, error)
}

// AffairPrefix returns the key prefix under which an affair's documents live.
func AffairPrefix(affairID string) string {
	if affairID == "" {
		return ""
	}
	return "affaires/" + affairID + "/"
}

// FileName returns the last path element of key ("devis.pdf").
func FileName(key string) string {
	return path.Base(key)
}

// Ext returns the lowercased extension of key without the dot.
func Ext(key string) string {
	return strings.ToLower(strings.TrimPrefix(path.Ext(key), "."))
}

// Stem returns the file name of key with its extension removed ("devis").
func Stem(key string) string {
	name := FileName(key)
	return strings.TrimSuffix(name, path.Ext(name))
}
