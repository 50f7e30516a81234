package server

import (
	"context"
	"io"

	"github.com/a-h/templ"
)

// shellScript connects the page to /ws and relays between the socket and the
// sandboxed frame. setDocument replaces the frame's srcdoc, setCSS is posted
// into the frame, and messages posted by the frame go back to the server.
const shellScript = `(function () {
  var frame = document.getElementById("preview");
  var toast = document.getElementById("toast");
  var status = document.getElementById("status");
  var socket;

  function showWarning(text) {
    toast.textContent = text;
    toast.hidden = false;
    clearTimeout(showWarning.timer);
    showWarning.timer = setTimeout(function () { toast.hidden = true; }, 4000);
  }

  function connect() {
    var scheme = location.protocol === "https:" ? "wss://" : "ws://";
    socket = new WebSocket(scheme + location.host + "/ws");
    socket.onopen = function () { status.textContent = "live"; };
    socket.onclose = function () {
      status.textContent = "reconnecting";
      setTimeout(connect, 1000);
    };
    socket.onmessage = function (event) {
      var msg;
      try { msg = JSON.parse(event.data); } catch (e) { return; }
      switch (msg.command) {
        case "setDocument":
          frame.srcdoc = msg.html;
          break;
        case "warning":
          showWarning(msg.text);
          break;
        default:
          if (frame.contentWindow) {
            frame.contentWindow.postMessage(msg, "*");
          }
      }
    };
  }

  window.addEventListener("message", function (event) {
    if (event.source !== frame.contentWindow || !socket || socket.readyState !== WebSocket.OPEN) {
      return;
    }
    socket.send(JSON.stringify(event.data));
  });

  connect();
})();`

const shellStyle = `html,body{margin:0;height:100%;font-family:system-ui,sans-serif}
header{display:flex;justify-content:space-between;padding:4px 8px;font-size:12px;background:#f3f3f3;border-bottom:1px solid #ddd}
iframe{border:0;width:100%;height:calc(100% - 25px);background:white}
#toast{position:fixed;right:12px;bottom:12px;padding:8px 12px;background:#fff4ce;border:1px solid #e0c060;border-radius:4px}`

// shellPage renders the host page around the sandboxed preview frame. The
// frame gets scripts and modals but no same-origin access.
func shellPage(title, instanceID string) templ.Component {
	return templ.ComponentFunc(func(ctx context.Context, w io.Writer) error {
		parts := []string{
			`<!DOCTYPE html><html lang="en"><head><meta charset="utf-8"><title>`,
			templ.EscapeString(title),
			`</title><style>`, shellStyle, `</style></head><body>`,
			`<header><span>`, templ.EscapeString(title), ` `,
			`<small>`, templ.EscapeString(instanceID), `</small></span>`,
			`<span id="status">connecting</span></header>`,
			`<iframe id="preview" title="preview" sandbox="allow-scripts allow-modals allow-forms"></iframe>`,
			`<div id="toast" role="alert" hidden></div>`,
			`<script>`, shellScript, `</script></body></html>`,
		}
		for _, part := range parts {
			if _, err := io.WriteString(w, part); err != nil {
				return err
			}
		}
		return nil
	})
}
