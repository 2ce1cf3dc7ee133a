package server

// liveReloadScript connects to /ws and reloads the page when a watched file
// changes. includes:ready messages are re-dispatched on window.
const liveReloadScript = `<script data-stitch-livereload>
(function () {
  var proto = location.protocol === "https:" ? "wss:" : "ws:";
  var delay = 500;
  function connect() {
    var ws = new WebSocket(proto + "//" + location.host + "/ws");
    ws.onopen = function () { delay = 500; };
    ws.onmessage = function (ev) {
      var msg;
      try { msg = JSON.parse(ev.data); } catch (e) { return; }
      if (msg.type === "reload") {
        location.reload();
      } else if (msg.type === "includes:ready") {
        window.dispatchEvent(new CustomEvent("stitch:server-ready", { detail: msg }));
      }
    };
    ws.onclose = function () {
      setTimeout(connect, delay);
      delay = Math.min(delay * 2, 10000);
    };
  }
  connect();
})();
</script>`
