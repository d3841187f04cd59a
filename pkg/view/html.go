package view

import (
	"bytes"
	"encoding/json"
	"fmt"
	"html/template"
	"io"
)

var funcMap = template.FuncMap{
	"colorClass": colorClass,
	"formatPct": func(coverage float64) string {
		return fmt.Sprintf("%.2f %%", coverage)
	},
	// Fragments look like a URL scheme to the escaper ("#rev:path").
	"fragment": func(target string) template.URL {
		return template.URL(target)
	},
	"langClass": func(language string) string {
		if language == "" {
			return ""
		}
		return "lang-" + language
	},
}

// colorClass buckets a coverage percentage for styling.
func colorClass(coverage float64) string {
	if coverage >= 70 {
		return "excellent"
	} else if coverage >= 50 {
		return "good"
	} else if coverage >= 30 {
		return "moderate"
	} else if coverage >= 15 {
		return "poor"
	}
	return "critical"
}

var templates = template.Must(template.New("view").Funcs(funcMap).Parse(outputTemplates))

// RenderOutput returns the HTML of the output region, or "" when the view
// has nothing to show.
func RenderOutput(v ViewState) (template.HTML, error) {
	var (
		buf  bytes.Buffer
		name string
	)
	switch {
	case v.Directory != nil:
		name = "directory"
	case v.File != nil:
		name = "file"
	default:
		return "", nil
	}
	if err := templates.ExecuteTemplate(&buf, name, v); err != nil {
		return "", fmt.Errorf("render %s output: %w", name, err)
	}
	return template.HTML(buf.String()), nil
}

// Payload is what the page shell applies to its regions after a navigation.
type Payload struct {
	View          ViewState `json:"view"`
	Output        string    `json:"output"`
	RevisionInput string    `json:"revisionInput"`
}

// NewPayload renders v for the page shell.
func NewPayload(v ViewState) (Payload, error) {
	out, err := RenderOutput(v)
	if err != nil {
		return Payload{}, err
	}
	return Payload{View: v, Output: string(out), RevisionInput: v.RevisionInput()}, nil
}

// WriteJSON writes the payload for v as one JSON document.
func WriteJSON(w io.Writer, v ViewState) error {
	p, err := NewPayload(v)
	if err != nil {
		return err
	}
	return json.NewEncoder(w).Encode(p)
}

// PageOptions configures the page shell.
type PageOptions struct {
	Title     string
	RootLabel string
}

// WritePage writes the HTML shell that drives navigation in the browser.
func WritePage(w io.Writer, opts PageOptions) error {
	if opts.Title == "" {
		opts.Title = "Coverage browser"
	}
	if err := templates.ExecuteTemplate(w, "page", opts); err != nil {
		return fmt.Errorf("render page: %w", err)
	}
	return nil
}

const outputTemplates = `
{{define "navbar"}}<nav class="crumbs">{{range $i, $c := .Crumbs}}{{if $i}} / {{end}}<a href="{{fragment $c.Target}}">{{$c.Label}}</a>{{end}}</nav>{{end}}

{{define "directory"}}<div id="output" class="directory">
  <h2>{{template "navbar" .}}<span> : {{.Directory.Header}}</span></h2>
  <div class="table">
    <div class="header"><span class="filename">File name</span><span>Children</span><span>Coverage</span></div>
    {{range .Directory.Rows}}<div class="row">
      <span class="filename"><a href="{{fragment .Target}}">{{.Name}}</a></span>
      <span>{{if .ChildCount}}{{.ChildCount}}{{end}}</span>
      <span class="coverage-text {{colorClass .CoveragePercent}}">{{formatPct .CoveragePercent}}</span>
    </div>
    {{end}}
  </div>
</div>{{end}}

{{define "file"}}<div id="output" class="file">
  {{template "navbar" .}}
  {{if .File.Misaligned}}<p class="misaligned">Source and coverage data have different line counts.</p>{{end}}
  <table id="file"><tbody>
    {{$lang := langClass .File.Language}}
    {{range .File.Lines}}<tr class="{{.Class}}"><td>{{.Number}}</td><td><pre><code class="{{$lang}}">{{.Text}}</code></pre></td></tr>
    {{end}}
  </tbody></table>
</div>{{end}}

{{define "page"}}<!DOCTYPE html>
<html lang="en">
<head>
  <meta charset="utf-8">
  <title>{{.Title}}</title>
  <link rel="stylesheet" href="https://cdnjs.cloudflare.com/ajax/libs/prism/1.29.0/themes/prism.min.css">
  <script src="https://cdnjs.cloudflare.com/ajax/libs/prism/1.29.0/prism.min.js"></script>
  <script src="https://cdnjs.cloudflare.com/ajax/libs/prism/1.29.0/plugins/autoloader/prism-autoloader.min.js"></script>
  <script src="https://cdn.plot.ly/plotly-2.27.0.min.js"></script>
  <style>
    body { font-family: -apple-system, BlinkMacSystemFont, "Segoe UI", Roboto, sans-serif; margin: 1em 2em; }
    header { display: flex; justify-content: space-between; align-items: center; }
    #message { padding: 0.5em 1em; border-radius: 4px; margin: 1em 0; }
    #message.loading { background: #e7f1fb; color: #1f5f99; }
    #message.warning { background: #fff4d6; color: #8a6100; }
    #message.error { background: #fde2e2; color: #9b1c1c; }
    .hidden { display: none; }
    .table .header, .table .row { display: grid; grid-template-columns: 1fr 8em 8em; padding: 2px 4px; }
    .table .header { font-weight: bold; border-bottom: 1px solid #ccc; }
    .table .row:nth-child(odd) { background: #f7f7f7; }
    .excellent { color: #1a7f37; } .good { color: #4d8f00; } .moderate { color: #b08800; }
    .poor { color: #d1570b; } .critical { color: #cf222e; }
    #file { border-collapse: collapse; border-spacing: 0; }
    #file td:first-child { color: #999; text-align: right; padding-right: 1em; user-select: none; }
    #file pre, #file code { margin: 0; padding: 0; background: none; }
    #file tr.covered { background: #e6ffed; }
    #file tr.uncovered { background: #ffeef0; }
  </style>
</head>
<body data-root-label="{{.RootLabel}}">
  <header>
    <h1>{{.Title}}</h1>
    <label>Revision <input id="revision" type="text" placeholder="latest"></label>
  </header>
  <div id="message" class="hidden"></div>
  <div id="history" class="hidden"></div>
  <div id="output"></div>
  <script>
    let generation = 0;

    function applyStatus(status) {
      const el = document.getElementById('message');
      el.className = status && status.kind ? status.kind : 'hidden';
      el.textContent = status && status.text ? status.text : '';
    }

    function applyPayload(payload) {
      applyStatus(payload.view.status);
      const history = document.getElementById('history');
      if (payload.view.history) {
        history.className = '';
        Plotly.newPlot('history', payload.view.history.data, payload.view.history.layout);
      } else {
        history.className = 'hidden';
        history.innerHTML = '';
      }
      const output = document.getElementById('output');
      output.outerHTML = payload.output || '<div id="output"></div>';
      document.getElementById('revision').value = payload.revisionInput;
      Prism.highlightAll();
    }

    async function navigate() {
      const current = ++generation;
      document.getElementById('history').className = 'hidden';
      document.getElementById('output').innerHTML = '';
      const resp = await fetch('render?fragment=' + encodeURIComponent(window.location.hash));
      const reader = resp.body.getReader();
      const decoder = new TextDecoder();
      let buffered = '';
      for (;;) {
        const {value, done} = await reader.read();
        if (current !== generation) { reader.cancel(); return; }
        buffered += decoder.decode(value || new Uint8Array(), {stream: !done});
        let nl;
        while ((nl = buffered.indexOf('\n')) >= 0) {
          const line = buffered.slice(0, nl);
          buffered = buffered.slice(nl + 1);
          if (!line) continue;
          const event = JSON.parse(line);
          if (event.status) applyStatus(event.status);
          if (event.payload) applyPayload(event.payload);
        }
        if (done) return;
      }
    }

    document.getElementById('revision').addEventListener('keydown', async (evt) => {
      if (evt.key !== 'Enter') return;
      const resp = await fetch('encode?fragment=' + encodeURIComponent(window.location.hash) +
        '&revision=' + encodeURIComponent(evt.target.value));
      window.location.hash = await resp.text();
    });

    window.addEventListener('hashchange', navigate);
    navigate();
  </script>
</body>
</html>
{{end}}
`
