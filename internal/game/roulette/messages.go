package roulette

import (
	"fmt"

	"group-roulette-bot/internal/model"
	"group-roulette-bot/internal/platform"
)

// shotText is the six-entry suspense table, indexed by shots fired.
var shotText = [6]string{
	"无需退路。",
	"英雄们啊，为这最强大的信念，请站在我们这边。",
	"颤抖吧，在真正的勇敢面前。",
	"哭嚎吧，为你们不堪一击的信念。",
	"现在可没有后悔的余地了。",
	"你将在此跪拜。",
}

const (
	jamText      = "我的手中的这把武器，找了无数工匠都难以修缮如新。不......不该如此......"
	peacefulText = "听啊，悲鸣停止了。这是幸福的和平到来前的宁静。"
	hitPrefix    = "米诺斯英雄们的故事......有喜剧，便也会有悲剧。舍弃了荣耀，"
	hitSuffix    = "选择回归平凡......"
)

// startText announces a new game, naming the consequence in effect.
func startText(mode model.RouletteMode) string {
	consequence := "踢出群聊"
	if mode == model.ModeMute {
		consequence = "禁言"
	}
	return fmt.Sprintf(
		"这是一把充满荣耀与死亡的左轮手枪，六个弹槽只有一颗子弹，中弹的那个人将会被%s。勇敢的战士们啊，扣动你们的扳机吧！",
		consequence,
	)
}

// suspenseText is the message for a survived shot.
func suspenseText(shot int) string {
	return fmt.Sprintf("%s( %d / 6 )", shotText[shot-1], shot)
}

// hitText announces a hit on the target. A positive count appends the
// running tally of the drunk multi-target resolution.
func hitText(userID int64, count int) string {
	msg := hitPrefix + platform.At(userID) + hitSuffix
	if count > 0 {
		msg += fmt.Sprintf(" ( %d / 6 )", count)
	}
	return msg
}
