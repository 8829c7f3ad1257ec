package microsoft

// messagePage is one page of a Graph message listing. Paging follows
// @odata.nextLink until it is absent.
type messagePage struct {
	Value    []message `json:"value"`
	NextLink string    `json:"@odata.nextLink"`
}

// message is the subset of a Graph message selected during listing.
type message struct {
	ID               string       `json:"id"`
	Subject          string       `json:"subject"`
	From             *recipient   `json:"from"`
	ReceivedDateTime string       `json:"receivedDateTime"`
	WebLink          string       `json:"webLink"`
	IsRead           bool         `json:"isRead"`
	Flag             *messageFlag `json:"flag"`
}

type recipient struct {
	EmailAddress emailAddress `json:"emailAddress"`
}

type emailAddress struct {
	Name    string `json:"name"`
	Address string `json:"address"`
}

type messageFlag struct {
	FlagStatus string `json:"flagStatus"`
}

// errorResponse is the Graph error envelope.
type errorResponse struct {
	Error struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}
