package email

import (
	"bytes"
	"fmt"
	"html/template"
)

const subjectEmergencyAlertFmt = "EMERGENCY: live call from %s"

const emergencyAlertTemplate = `
<!DOCTYPE html>
<html>
<body style="font-family: sans-serif; color: #1a1a1a;">
  <h2 style="color: #b00020;">Emergency call in progress</h2>
  <p>An active caller reported an emergency.</p>
  <table cellpadding="6">
    <tr><td><strong>Caller</strong></td><td>{{.CallerPhone}}</td></tr>
    {{if .MatchedText}}<tr><td><strong>Trigger</strong></td><td>&quot;{{.MatchedText}}&quot;</td></tr>{{end}}
    {{if .Reason}}<tr><td><strong>Escalation</strong></td><td>{{.Reason}}</td></tr>{{end}}
    {{if .ServiceTypes}}<tr><td><strong>Services</strong></td><td>{{range $i, $s := .ServiceTypes}}{{if $i}}, {{end}}{{$s}}{{end}}</td></tr>{{end}}
    <tr><td><strong>Call ID</strong></td><td>{{.CallID}}</td></tr>
  </table>
  <p>Call the customer back immediately if the line drops.</p>
</body>
</html>`

type emergencyAlertData struct {
	CallID       string
	CallerPhone  string
	MatchedText  string
	Reason       string
	ServiceTypes []string
}

var emergencyTmpl = template.Must(template.New("emergency_alert").Parse(emergencyAlertTemplate))

func renderEmergencyAlert(data emergencyAlertData) (string, error) {
	var buf bytes.Buffer
	if err := emergencyTmpl.Execute(&buf, data); err != nil {
		return "", fmt.Errorf("render emergency alert: %w", err)
	}
	return buf.String(), nil
}
