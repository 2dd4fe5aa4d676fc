package types

import "time"

// GmailThreadSummary is the conversation handle for a Gmail thread.
type GmailThreadSummary struct {
	Id           string `json:"id"`
	Subject      string `json:"subject"`
	From         string `json:"from"`
	Date         string `json:"date"`
	Snippet      string `json:"snippet"`
	MessageCount int    `json:"messageCount"`
}

type GmailThreadList struct {
	Threads            []GmailThreadSummary `json:"threads"`
	ResultSizeEstimate int64                `json:"resultSizeEstimate"`
}

type GmailMessage struct {
	Id   string `json:"id"`
	From string `json:"from"`
	Date string `json:"date"`
	Body string `json:"body"`
}

type GmailThread struct {
	Id       string         `json:"id"`
	Subject  string         `json:"subject"`
	Messages []GmailMessage `json:"messages"`
}

// GmailEmail is a single message fetched on its own.
type GmailEmail struct {
	Id      string `json:"id"`
	Subject string `json:"subject"`
	From    string `json:"from"`
	Date    string `json:"date"`
	Body    string `json:"body"`
}

// SlackChannelSummary is the conversation handle for a Slack channel.
type SlackChannelSummary struct {
	Id         string `json:"id"`
	Name       string `json:"name"`
	IsPrivate  bool   `json:"is_private"`
	NumMembers int    `json:"num_members"`
	Topic      string `json:"topic"`
	Purpose    string `json:"purpose"`
}

// SlackMessage is a resolved channel message in chronological order.
type SlackMessage struct {
	Timestamp time.Time `json:"timestamp"`
	UserId    string    `json:"user_id"`
	Sender    string    `json:"sender"`
	Text      string    `json:"text"`
}

type SlackConversation struct {
	ChannelId   string         `json:"channel_id"`
	ChannelName string         `json:"channel_name"`
	Messages    []SlackMessage `json:"messages"`
}
