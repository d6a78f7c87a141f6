package gateway

import (
	"net/http"
	"time"

	"crossover-sim/internal/backtest"
	"crossover-sim/internal/model"
	"crossover-sim/internal/pipeline"
	"crossover-sim/internal/report"
	"crossover-sim/internal/strategy"

	"github.com/gorilla/websocket"
)

// runStream writes the events of one run to a single connection.
// The first write error is kept and later writes are skipped.
type runStream struct {
	conn *websocket.Conn
	seq  int
	err  error
}

func (rs *runStream) send(ev Event) {
	if rs.err != nil {
		return
	}
	rs.seq++
	ev.Seq = rs.seq
	rs.conn.SetWriteDeadline(time.Now().Add(writeWait))
	rs.err = rs.conn.WriteJSON(ev)
}

func (rs *runStream) close(code int, text string) {
	msg := websocket.FormatCloseMessage(code, text)
	rs.conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(writeWait))
	rs.conn.Close()
}

// handleStreamRun runs a simulation and streams each day, each trade and
// finally the summary document, then closes the connection.
func (s *Server) handleStreamRun(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger().Warn("ws upgrade failed", "error", err)
		return
	}
	rs := &runStream{conn: conn}

	cfg, err := s.config(r)
	if err != nil {
		rs.send(Event{Type: EventError, Error: err.Error()})
		rs.close(websocket.CloseNormalClosure, "invalid parameters")
		return
	}

	if s.Metrics != nil {
		s.Metrics.StreamClients.Inc()
		defer s.Metrics.StreamClients.Dec()
	}

	hooks := backtest.Hooks{
		OnDay: func(e model.LedgerEntry, sig strategy.Signal) {
			rs.send(Event{Type: EventDay, Data: NewDayOut(e, sig)})
		},
		OnTrade: func(t model.Trade) {
			rs.send(Event{Type: EventTrade, Data: report.NewTradeDocs([]model.Trade{t})[0]})
		},
	}
	out, err := s.run(r.Context(), cfg, pipeline.Options{Hooks: hooks})
	if err != nil {
		rs.send(Event{Type: EventError, Error: err.Error()})
		rs.close(websocket.CloseNormalClosure, "run failed")
		return
	}
	rs.send(Event{Type: EventSummary, Data: report.NewDocument(out)})
	if rs.err != nil {
		s.logger().Warn("stream client dropped", "run_id", out.RunID, "error", rs.err)
	}
	rs.close(websocket.CloseNormalClosure, "done")
}
