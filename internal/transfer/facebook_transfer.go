package transfer

type FacebookIdentity struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	Metadata struct {
		Type string `json:"type"`
	} `json:"metadata"`
}

type FacebookPostResponse struct {
	ID     string `json:"id"`
	PostID string `json:"post_id"`
}
