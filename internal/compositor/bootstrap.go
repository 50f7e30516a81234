package compositor

import (
	"encoding/json"
	"strings"
	"text/template"
)

// bootstrapTemplate is injected at the top of every composed head. It runs
// inside the rendering surface before any page script.
//
// The host API shim prefers an embedding host's acquireVsCodeApi and
// otherwise persists state in sessionStorage (falling back to memory when
// storage is blocked, as in an opaque-origin iframe) and posts upstream to
// the parent window.
var bootstrapTemplate = template.Must(template.New("bootstrap").Funcs(template.FuncMap{
	"json": toJSON,
}).Parse(`
(function () {
  var rootAttrs = {{json .RootAttributes}};
  var root = document.documentElement;
  var styleAttr = null;
  rootAttrs.forEach(function (attr) {
    root.setAttribute(attr.name, attr.value);
    if (attr.name === 'style') {
      styleAttr = attr.value;
    }
  });

  var defaults = document.getElementById({{json .DefaultStyleID}});
  if (defaults) {
    defaults.remove();
  }

  setTimeout(function () {
    root.style = '';
    if (styleAttr) {
      root.style = styleAttr;
    }
  }, 0);

  var host = (function () {
    if (typeof acquireVsCodeApi === 'function') {
      return acquireVsCodeApi();
    }
    var key = {{json .StateKey}};
    var memory;
    return {
      getState: function () {
        try {
          var raw = window.sessionStorage.getItem(key);
          return raw ? JSON.parse(raw) : memory;
        } catch (e) {
          return memory;
        }
      },
      setState: function (state) {
        memory = state;
        try {
          window.sessionStorage.setItem(key, JSON.stringify(state));
        } catch (e) {}
      },
      postMessage: function (message) {
        window.parent.postMessage(message, '*');
      }
    };
  })();

  var style = document.getElementById({{json .StyleID}});
  var state = host.getState();
  if (state && typeof state.css === 'string' && style) {
    style.textContent = state.css;
  }

  window.addEventListener('message', function (event) {
    var message = event.data;
    if (!message || message.command !== {{json .SetCSSCommand}}) {
      return;
    }
    var css = typeof message.value === 'string' ? message.value : '';
    host.setState({ css: css });
    if (style) {
      style.textContent = css;
    }
  });

  window.alert = function (text) {
    host.postMessage({ command: {{json .AlertCommand}}, text: text === undefined ? '' : String(text) });
  };
})();
`))

type bootstrapData struct {
	RootAttributes []Attribute
	DefaultStyleID string
	StyleID        string
	StateKey       string
	SetCSSCommand  string
	AlertCommand   string
}

// toJSON renders v as a JavaScript literal. encoding/json escapes <, > and &
// so the result cannot close the surrounding script element.
func toJSON(v any) (string, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return "", err
	}

	return string(data), nil
}

func renderBootstrap(data bootstrapData) string {
	if data.RootAttributes == nil {
		data.RootAttributes = []Attribute{}
	}

	var sb strings.Builder
	if err := bootstrapTemplate.Execute(&sb, data); err != nil {
		// Every field is a string or a slice of string pairs.
		panic("compositor: bootstrap template: " + err.Error())
	}

	return sb.String()
}
