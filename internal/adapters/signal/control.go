package signal

func (c *Client) handlePing(conn *wsConn) {
	resp := struct {
		Type string `json:"type"`
	}{
		Type: "pong",
	}
	c.sendJSON(conn, resp)
}

// handleConflict ends the connection; the conflict callback fires on exit
// instead of the close callback.
func (c *Client) handleConflict(conn *wsConn) {
	if !conn.conflict.CompareAndSwap(false, true) {
		return
	}
	c.log.Warn().Uint64("gen", conn.gen).Msg("server reported connection conflict")
	conn.Close()
}
