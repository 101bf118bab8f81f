package net

// RPCResponse carries the acknowledgement of an inbound envelope.
type RPCResponse struct {
	Error error
}

// RPC encapsulates an inbound envelope and provides an acknowledgement
// mechanism.
type RPC struct {
	Envelope *Envelope
	RespChan chan<- RPCResponse
}

// Respond acknowledges the envelope, with an error if it was refused. The
// response channel is buffered so Respond never blocks.
func (r *RPC) Respond(err error) {
	r.RespChan <- RPCResponse{Error: err}
}
