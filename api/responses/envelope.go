package responses

// Success wraps every 2xx body.
type Success struct {
	Data any `json:"data"`
}

// Problem is the public shape of a failed request.
type Problem struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Details any    `json:"details,omitempty"`
}

type Failure struct {
	Error Problem `json:"error"`
}
