package notify

import (
	"bytes"
	"fmt"
	"text/template"
	"time"
)

var (
	reminderSubject = template.Must(template.New("reminder-subject").Parse(
		`Are you still there? Your dead man switch triggers in {{.DaysRemaining}} day{{if ne .DaysRemaining 1}}s{{end}}`))
	reminderBody = template.Must(template.New("reminder-body").Parse(`Hello {{.Name}},

We have not seen any activity on your WealthVault account for {{.DaysInactive}} days.
Your dead man switch is set to trigger after {{.InactivityDays}} days of inactivity, which leaves {{.DaysRemaining}} day{{if ne .DaysRemaining 1}}s{{end}}.

If you are fine, simply sign in to reset the timer.
{{- if .Tier}}

This is reminder {{.Tier}} of 3.
{{- end}}
`))

	alertSubject = template.Must(template.New("alert-subject").Parse(
		`{{.OwnerName}} has named you as their WealthVault nominee`))
	alertBody = template.Must(template.New("alert-body").Parse(`Hello {{.NomineeName}},

{{.OwnerName}} ({{.OwnerEmail}}) designated you{{if .Relationship}} ({{.Relationship}}){{end}} as their nominee on WealthVault.
Their account has been inactive for {{.DaysInactive}} days, past the {{.InactivityDays}}-day threshold they configured, as of {{.TriggeredAt}}.

You have been granted access to the information they chose to share with you. Follow the instructions in your WealthVault invitation to sign in.
`))
)

// ReminderData fills the inactivity reminder sent to the account owner.
type ReminderData struct {
	Name           string
	DaysInactive   int
	InactivityDays int
	DaysRemaining  int
	Tier           int
}

// AlertData fills the access-grant notice sent to a nominee.
type AlertData struct {
	NomineeName    string
	Relationship   string
	OwnerName      string
	OwnerEmail     string
	DaysInactive   int
	InactivityDays int
	TriggeredAt    time.Time
}

// ReminderMessage renders the owner reminder.
func ReminderMessage(toName, toEmail string, data ReminderData) (Message, error) {
	return render(toName, toEmail, reminderSubject, reminderBody, data)
}

// AlertMessage renders the nominee alert.
func AlertMessage(toName, toEmail string, data AlertData) (Message, error) {
	view := struct {
		AlertData
		TriggeredAt string
	}{AlertData: data, TriggeredAt: data.TriggeredAt.UTC().Format("2006-01-02 15:04 MST")}
	return render(toName, toEmail, alertSubject, alertBody, view)
}

func render(toName, toEmail string, subject, body *template.Template, data any) (Message, error) {
	var subjectBuf, bodyBuf bytes.Buffer
	if errExec := subject.Execute(&subjectBuf, data); errExec != nil {
		return Message{}, fmt.Errorf("notify: render %s: %w", subject.Name(), errExec)
	}
	if errExec := body.Execute(&bodyBuf, data); errExec != nil {
		return Message{}, fmt.Errorf("notify: render %s: %w", body.Name(), errExec)
	}
	return Message{
		ToName:  toName,
		ToEmail: toEmail,
		Subject: subjectBuf.String(),
		Body:    bodyBuf.String(),
	}, nil
}
