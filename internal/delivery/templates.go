package delivery

import (
	"bytes"
	"embed"
	"fmt"
	htmltemplate "html/template"
	texttemplate "text/template"
	"time"
)

//go:embed templates/*
var templateFS embed.FS

var (
	textTemplates = texttemplate.Must(texttemplate.ParseFS(templateFS, "templates/*.txt"))
	htmlTemplates = htmltemplate.Must(htmltemplate.ParseFS(templateFS, "templates/*.html"))
)

const (
	MagicLinkSubject   = "Your Verification Login Link - Secure File Share"
	VerifyEmailSubject = "Verify your email - Secure File Share"
	TestEmailSubject   = "Email Configuration Test - Secure File Share"
)

type MagicLinkData struct {
	Name        string
	Link        string
	ExpiresIn   time.Duration
	RequestedAt string
	IP          string
	UserAgent   string
}

type VerifyEmailData struct {
	Name      string
	Link      string
	ExpiresIn time.Duration
}

type TestEmailData struct {
	Host     string
	Port     int
	From     string
	StartTLS bool
}

// MagicLinkMessage renders the plain and HTML login email.
func MagicLinkMessage(to string, data MagicLinkData) (Message, error) {
	return render(to, MagicLinkSubject, "magic_login", data)
}

func VerifyEmailMessage(to string, data VerifyEmailData) (Message, error) {
	return render(to, VerifyEmailSubject, "verify_email", data)
}

// TestEmailMessage is plain text only.
func TestEmailMessage(to string, data TestEmailData) (Message, error) {
	var plain bytes.Buffer
	if err := textTemplates.ExecuteTemplate(&plain, "test_email.txt", data); err != nil {
		return Message{}, fmt.Errorf("render test_email: %w", err)
	}
	return Message{To: to, Subject: TestEmailSubject, PlainBody: plain.String()}, nil
}

func render(to, subject, name string, data any) (Message, error) {
	var plain, html bytes.Buffer
	if err := textTemplates.ExecuteTemplate(&plain, name+".txt", data); err != nil {
		return Message{}, fmt.Errorf("render %s: %w", name, err)
	}
	if err := htmlTemplates.ExecuteTemplate(&html, name+".html", data); err != nil {
		return Message{}, fmt.Errorf("render %s: %w", name, err)
	}
	return Message{To: to, Subject: subject, PlainBody: plain.String(), HTMLBody: html.String()}, nil
}
