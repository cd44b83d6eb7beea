package model

// RankingEntry is one row of an event ranking. Ranks are distinct and start at 1.
type RankingEntry struct {
	Rank     int    `json:"rank"`
	TeamID   int64  `json:"team_id"`
	TeamName string `json:"team_name"`
	Score    int64  `json:"score"`
	TeamSize int    `json:"team_size"`
}
