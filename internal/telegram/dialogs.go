package telegram

// Canned dialog texts. Kept together so the bot's entire vocabulary is
// reviewable in one place.

const greetingText = "Hi! This bot can help to analyse stocks market. " +
	"You can set some conditions and if the condition is met, you will be notified.\n" +
	"Send /help to see what I can do"

const helpText = `I understand these commands:
/add <rule> - save a notification rule
/list - show your saved rules
/remove <id> - delete a rule by its id
/help <command> - describe one command

A rule compares ticker data with numbers, for example:
/add #YNDX.mean[C]>2000`

var commandHelp = map[string]string{
	"start": "Shows the greeting message",
	"help":  "Shows this help. Use /help <command> for details on one command",
	"add": `Saves a notification rule. The rule is checked on every tick and you
get a message when it holds.

A ticker reference looks like #AGG:NAME.COLUMN[interval].FUNC()
  AGG      - data source: moex (default) or mxnl (MOEX futures analytics)
  NAME     - ticker symbol, for example YNDX
  COLUMN   - mean, vol, high, low for candles;
             long, short, long_numb, short_numb for analytics
  interval - [<count><letter>] where the letter is one of
             C (current), T (minute), H (hour), D (day),
             W (week), M (month), Q (quarter);
             an optional :<rewind> shifts the window back, e.g. [2H:-1]
  FUNC     - mean(), min(), max() or sum(); omit it to take the last value

References combine with numbers through + - * / %, comparisons
(< <= > >= == !=) and the words "and", "or", "not".

Examples:
  /add #YNDX.mean[C]>2000
  /add #MXNL:RIZ3.long[2H]:-1.mean() > 0
  /add #YNDX.vol[3D].sum() < 1000 or #YNDX.high[W]>5000`,
	"list":   "Shows your saved rules with their ids",
	"remove": "Deletes one rule: /remove <id>. Get the id from /list",
}
