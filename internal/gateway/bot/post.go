package bot

import (
	"fmt"

	"github.com/Xausdorf/mensa-bot/internal/domain"
	"github.com/Xausdorf/mensa-bot/internal/render"
	"github.com/Xausdorf/mensa-bot/internal/usecase"
	"github.com/mattermost/mattermost-server/v6/model"
)

const (
	actionsVotePath = "/actions/vote"
	actionsMenuPath = "/actions/menu"

	ctxPollID = "poll_id"
	ctxAction = "action"
	ctxOption = "option"
	ctxOffset = "offset"
	ctxLines  = "lines"
	ctxPoll   = "poll"
)

func (b *PollingBot) button(id, name, path string, context map[string]interface{}) *model.PostAction {
	return &model.PostAction{
		Id:   id,
		Name: name,
		Type: model.PostActionTypeButton,
		Integration: &model.PostActionIntegration{
			URL:     b.cfg.actionsURL + path,
			Context: context,
		},
	}
}

func (b *PollingBot) voteButton(id, name string, pollID string, action domain.Action) *model.PostAction {
	return b.button(id, name, actionsVotePath, map[string]interface{}{
		ctxPollID: pollID,
		ctxAction: action.Kind.String(),
		ctxOption: action.Option,
	})
}

// pollPost renders the live view of the poll, with vote buttons while it is open.
func (b *PollingBot) pollPost(snap usecase.Snapshot, withButtons bool) *model.Post {
	attachment := &model.SlackAttachment{
		Fallback: snap.Question,
		Text:     render.LiveView(snap.Question, snap.Tally),
	}
	if withButtons && b.cfg.actionsURL != "" {
		// Out is the last option and gets its own button below.
		for _, option := range snap.Options[:len(snap.Options)-1] {
			attachment.Actions = append(attachment.Actions,
				b.voteButton(fmt.Sprintf("select%d", option.Index), option.Label, snap.PollID, domain.Select(option.Index)))
		}
		attachment.Actions = append(attachment.Actions,
			b.voteButton("decline", domain.OutLabel, snap.PollID, domain.Decline()),
			b.voteButton("flexible", "Flexible", snap.PollID, domain.Flexible()),
			b.voteButton("clear", "Clear", snap.PollID, domain.Clear()),
		)
	}

	post := &model.Post{ChannelId: snap.Scope}
	model.ParseSlackAttachment(post, []*model.SlackAttachment{attachment})
	return post
}

// menuPost renders the menu with follow-up buttons.
func (b *PollingBot) menuPost(channelID, text string, offset int) *model.Post {
	post := &model.Post{ChannelId: channelID, Message: text}
	if b.cfg.actionsURL == "" {
		return post
	}

	other, otherName := 1, "Tomorrow's Menu"
	if offset != 0 {
		other, otherName = 0, "Today's Menu"
	}
	attachment := &model.SlackAttachment{
		Text: "Further info:",
		Actions: []*model.PostAction{
			b.button("othermenu", otherName, actionsMenuPath, map[string]interface{}{
				ctxOffset: other,
				ctxLines:  string(render.RegularLines),
			}),
			b.button("l6menu", "L6 Menu", actionsMenuPath, map[string]interface{}{
				ctxOffset: offset,
				ctxLines:  string(render.L6Lines),
			}),
			b.button("schedule", "Schedule", actionsMenuPath, map[string]interface{}{
				ctxPoll: true,
			}),
		},
	}
	model.ParseSlackAttachment(post, []*model.SlackAttachment{attachment})
	return post
}
