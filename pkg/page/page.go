// Package page renders the HTML document served by the responder.
package page

import (
	"fmt"
	"html/template"
	"io"
	"time"
)

// TimeLayout formats an instant as YYYY-MM-DDTHH:mm:ss.sssZ
const TimeLayout = "2006-01-02T15:04:05.000Z"

// Data holds the values substituted into the page
type Data struct {
	Hostname string
	Time     string
}

// FormatTime renders t in UTC using TimeLayout
func FormatTime(t time.Time) string {
	return t.UTC().Format(TimeLayout)
}

var tmpl = template.Must(template.New("page").Parse(document))

// Render writes the page for data to w
func Render(w io.Writer, data Data) error {
	if err := tmpl.Execute(w, data); err != nil {
		return fmt.Errorf("failed to render page: %w", err)
	}
	return nil
}

const document = `
<!DOCTYPE html>
<html lang="en">
<head>
<meta charset="UTF-8">
<meta name="viewport" content="width=device-width, initial-scale=1.0">
<title>Systems Engineer Technical Assessment</title>
<style>
body {
font-family: -apple-system, BlinkMacSystemFont, "Segoe UI",
Roboto, Helvetica, Arial, sans-serif;
display: grid;
place-items: center;
min-height: 90vh;
background-color: #f4f7f6;
color: #333;
}
.container {

background-color: #ffffff;
border-radius: 12px;
padding: 2rem 3rem;
box-shadow: 0 10px 25px rgba(0,0,0,0.05);
text-align: center;
}
h1 {
color: #1a5a96;
margin-top: 0;
}
p {
font-size: 1.1rem;
line-height: 1.6;
}
code {
background-color: #eef;
padding: 0.25rem 0.5rem;
border-radius: 6px;
font-size: 1rem;
font-family: "Courier New", Courier, monospace;
}
</style>
</head>
<body>
<div class="container">
<h1>Hello, Candidate!</h1>
<p>This response was served by container
<code>{{.Hostname}}</code>.</p>
<p>Server time is: <code>{{.Time}}</code>.</p>
<p><small>If you reload this page, you should see the *same* time
if caching is working correctly.</small></p>
</div>
</body>
</html>
`
