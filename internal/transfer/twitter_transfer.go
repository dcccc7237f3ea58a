package transfer

type TwitterProcessingInfo struct {
	State           string `json:"state"`
	CheckAfterSecs  int    `json:"check_after_secs"`
	ProgressPercent int    `json:"progress_percent"`
	Error           *struct {
		Code    int    `json:"code"`
		Name    string `json:"name"`
		Message string `json:"message"`
	} `json:"error,omitempty"`
}

type TwitterMedia struct {
	ID               string                 `json:"id"`
	MediaKey         string                 `json:"media_key"`
	Size             int                    `json:"size"`
	ExpiresAfterSecs int                    `json:"expires_after_secs"`
	ProcessingInfo   *TwitterProcessingInfo `json:"processing_info,omitempty"`
}

type TwitterMediaResponse struct {
	Data TwitterMedia `json:"data"`
}

type TwitterTweetMedia struct {
	MediaIDs []string `json:"media_ids"`
}

type TwitterCreateTweetRequest struct {
	Text  string             `json:"text"`
	Media *TwitterTweetMedia `json:"media,omitempty"`
}

type TwitterCreateTweetResponse struct {
	Data struct {
		ID   string `json:"id"`
		Text string `json:"text"`
	} `json:"data"`
}

type TwitterErrorResponse struct {
	Title  string `json:"title"`
	Detail string `json:"detail"`
	Type   string `json:"type"`
	Status int    `json:"status"`
}
