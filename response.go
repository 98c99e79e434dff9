package main

import (
	"encoding/json"
	"strconv"
	"strings"
)

// =============================================================================
// Domain types
// =============================================================================

// Token is the opaque credential pair proving an authenticated session.
// It is owned by the token store and replaced wholesale after a login.
type Token struct {
	Account    string `json:"account"`
	LoginToken string `json:"login_token"`
}

// UserInfo is the transient result of the who-am-I call.
type UserInfo struct {
	NickName     string
	LoginExpired bool
}

// LoginInfo is the transient result of a login call.
type LoginInfo struct {
	Token    Token
	UserInfo UserInfo
}

type BookInfo struct {
	Name         string
	Author       string
	CoverURL     string
	Introduction []string
}

// Volume is a named grouping of chapters, in table-of-contents order.
type Volume struct {
	ID       uint64
	Name     string
	Chapters []Chapter
}

// Chapter texts stay empty until the fetch pipeline fills them in.
type Chapter struct {
	ID    uint64
	Title string
	Texts []string
}

// GeetestInfo describes a pending human-verification challenge.
type GeetestInfo struct {
	GT         string `json:"gt"`
	Challenge  string `json:"challenge"`
	NewCaptcha int    `json:"new_captcha"`
}

// ValidationResult is the solved (challenge, validate) pair. A challenge is
// single-use: the pair is consumed by exactly one login call and never cached.
type ValidationResult struct {
	Challenge string
	Validate  string
}

// =============================================================================
// Envelope classification
// =============================================================================

// CodeScheme holds the per-provider status predicates. Every provider
// integration shares the envelope type below and differs only in which codes
// mean success and which mean "log in again".
type CodeScheme struct {
	IsSuccess func(code string) bool
	IsExpired func(code string) bool
}

// hbookerScheme: code "100000" is success, "200100" means the token is stale.
var hbookerScheme = CodeScheme{
	IsSuccess: func(code string) bool { return code == "100000" },
	IsExpired: func(code string) bool { return code == "200100" },
}

// statusCode tolerates both string and numeric codes on the wire.
type statusCode string

func (c *statusCode) UnmarshalJSON(data []byte) error {
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*c = statusCode(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return err
	}
	*c = statusCode(n.String())
	return nil
}

type envelope struct {
	Code statusCode      `json:"code"`
	Tip  string          `json:"tip"`
	Data json.RawMessage `json:"data"`
}

// classify parses a decrypted provider response and returns the payload on
// success, ErrSessionExpired on the provider's re-authenticate signal, or an
// AppError carrying the provider's message for anything else.
func classify(raw []byte, scheme CodeScheme) (json.RawMessage, error) {
	var env envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil, &DecodeError{Op: "response envelope", Err: err}
	}

	code := string(env.Code)
	switch {
	case scheme.IsSuccess(code):
		return env.Data, nil
	case scheme.IsExpired(code):
		return nil, ErrSessionExpired
	default:
		return nil, &AppError{Code: code, Tip: strings.TrimSpace(env.Tip)}
	}
}

// =============================================================================
// Payload extractors
// =============================================================================

func parseUserInfo(data json.RawMessage) (UserInfo, error) {
	var payload struct {
		ReaderInfo struct {
			ReaderName string `json:"reader_name"`
		} `json:"reader_info"`
	}
	if err := json.Unmarshal(data, &payload); err != nil {
		return UserInfo{}, &DecodeError{Op: "user info", Err: err}
	}
	return UserInfo{NickName: strings.TrimSpace(payload.ReaderInfo.ReaderName)}, nil
}

func parseLoginInfo(data json.RawMessage) (LoginInfo, error) {
	var payload struct {
		LoginToken string `json:"login_token"`
		ReaderInfo struct {
			Account    string `json:"account"`
			ReaderName string `json:"reader_name"`
		} `json:"reader_info"`
	}
	if err := json.Unmarshal(data, &payload); err != nil {
		return LoginInfo{}, &DecodeError{Op: "login info", Err: err}
	}

	return LoginInfo{
		Token: Token{
			Account:    payload.ReaderInfo.Account,
			LoginToken: payload.LoginToken,
		},
		UserInfo: UserInfo{NickName: strings.TrimSpace(payload.ReaderInfo.ReaderName)},
	}, nil
}

func parseBookInfo(data json.RawMessage) (BookInfo, error) {
	var payload struct {
		BookInfo struct {
			BookName    string `json:"book_name"`
			AuthorName  string `json:"author_name"`
			Cover       string `json:"cover"`
			Description string `json:"description"`
		} `json:"book_info"`
	}
	if err := json.Unmarshal(data, &payload); err != nil {
		return BookInfo{}, &DecodeError{Op: "book info", Err: err}
	}

	info := BookInfo{
		Name:     strings.TrimSpace(payload.BookInfo.BookName),
		Author:   strings.TrimSpace(payload.BookInfo.AuthorName),
		CoverURL: strings.TrimSpace(payload.BookInfo.Cover),
	}
	for _, line := range strings.Split(payload.BookInfo.Description, "\n") {
		if line = strings.TrimSpace(line); line != "" {
			info.Introduction = append(info.Introduction, line)
		}
	}
	return info, nil
}

// parseVolumes builds the fetch manifest. Chapters the provider marks invalid
// or unauthorized are logged and left out; they are not errors. Ids are parsed
// exactly once from the provider's string form.
func parseVolumes(data json.RawMessage, logger Logger) ([]Volume, error) {
	var payload struct {
		ChapterList []struct {
			DivisionID   string `json:"division_id"`
			DivisionName string `json:"division_name"`
			ChapterList  []struct {
				ChapterID    string `json:"chapter_id"`
				ChapterTitle string `json:"chapter_title"`
				IsValid      string `json:"is_valid"`
				AuthAccess   string `json:"auth_access"`
			} `json:"chapter_list"`
		} `json:"chapter_list"`
	}
	if err := json.Unmarshal(data, &payload); err != nil {
		return nil, &DecodeError{Op: "volume list", Err: err}
	}

	volumes := make([]Volume, 0, len(payload.ChapterList))
	for _, division := range payload.ChapterList {
		volumeID, err := strconv.ParseUint(strings.TrimSpace(division.DivisionID), 10, 64)
		if err != nil {
			return nil, &DecodeError{Op: "division id", Err: err}
		}

		volume := Volume{
			ID:   volumeID,
			Name: strings.TrimSpace(division.DivisionName),
		}
		for _, chapter := range division.ChapterList {
			title := strings.TrimSpace(chapter.ChapterTitle)

			if chapter.IsValid != "1" {
				logger.Log("The chapter is not valid, title: %s", title)
				continue
			}
			if chapter.AuthAccess != "1" {
				logger.Log("No authorized access, title: %s", title)
				continue
			}

			chapterID, err := strconv.ParseUint(strings.TrimSpace(chapter.ChapterID), 10, 64)
			if err != nil {
				return nil, &DecodeError{Op: "chapter id", Err: err}
			}
			volume.Chapters = append(volume.Chapters, Chapter{ID: chapterID, Title: title})
		}
		volumes = append(volumes, volume)
	}
	return volumes, nil
}

func parseChapterCommand(data json.RawMessage) (string, error) {
	var payload struct {
		Command string `json:"command"`
	}
	if err := json.Unmarshal(data, &payload); err != nil {
		return "", &DecodeError{Op: "chapter command", Err: err}
	}
	return strings.TrimSpace(payload.Command), nil
}

func parseChapterText(data json.RawMessage) (string, error) {
	var payload struct {
		ChapterInfo struct {
			TxtContent string `json:"txt_content"`
		} `json:"chapter_info"`
	}
	if err := json.Unmarshal(data, &payload); err != nil {
		return "", &DecodeError{Op: "chapter text", Err: err}
	}
	return payload.ChapterInfo.TxtContent, nil
}

func parseUseGeetest(data json.RawMessage) (bool, error) {
	var payload struct {
		NeedUseGeetest string `json:"need_use_geetest"`
	}
	if err := json.Unmarshal(data, &payload); err != nil {
		return false, &DecodeError{Op: "use geetest", Err: err}
	}
	return payload.NeedUseGeetest == "1", nil
}

func parseGeetestInfo(data json.RawMessage) (GeetestInfo, error) {
	var info GeetestInfo
	if err := json.Unmarshal(data, &info); err != nil {
		return GeetestInfo{}, &DecodeError{Op: "geetest info", Err: err}
	}
	return info, nil
}
