package thread

import (
	"fmt"
	"strings"

	"github.com/okian/mafiabot/internal/domain/model"
)

// Header titles the bot uses. LastTally only recognizes the two tally
// titles, so tallies reconstructed at a past post get a different one.
const (
	HeaderTally      = "Recuento de votos"
	HeaderFinalTally = "Recuento de votos final"
)

// Render turns an event into a post header and body lines.
func Render(e model.Event) (string, []string) { //nolint:gocritic // hugeParam: events travel by value
	switch e.Kind {
	case model.EventTally:
		if e.UpToPost > 0 {
			return fmt.Sprintf("Recuento de votos hasta el mensaje #%d", e.UpToPost), tallyBody(e)
		}
		return HeaderTally, tallyBody(e)

	case model.EventLynch:
		body := append([]string{fmt.Sprintf("%s ha sido linchado.", e.SubjectName)}, tallyBody(e)...)
		return HeaderFinalTally, body

	case model.EventEndOfDay:
		line := "Fin del día sin candidato a linchar."
		if !e.NoCandidate {
			line = fmt.Sprintf("Fin del día. Más votado: %s.", e.SubjectName)
		}
		return HeaderFinalTally, append([]string{line}, tallyBody(e)...)

	case model.EventShooting:
		line := fmt.Sprintf("%s dispara a %s, que sobrevive.", e.ActorName, e.SubjectName)
		if e.VictimDied {
			line = fmt.Sprintf("%s dispara a %s, que muere.", e.ActorName, e.SubjectName)
		}
		return "Disparo", []string{line, majorityLine(e)}

	case model.EventMayorReveal:
		return "Alcalde", []string{fmt.Sprintf("%s se revela como alcalde.", e.ActorName)}

	case model.EventVoteHistory:
		return "Historial de votos de " + e.SubjectName, historyBody(e.History, false)

	case model.EventVoters:
		return "Votantes de " + e.SubjectName, historyBody(e.History, true)

	case model.EventGameOver:
		return "Ganador", []string{fmt.Sprintf("La partida ha terminado. Gana: %s.", e.Subject)}
	}
	return string(e.Kind), nil
}

func majorityLine(e model.Event) string { //nolint:gocritic // hugeParam: events travel by value
	return fmt.Sprintf("Vivos: %d. Mayoría: %d.", e.AliveCount, e.Majority)
}

// tallyBody groups ballots by target in order of first vote.
func tallyBody(e model.Event) []string { //nolint:gocritic // hugeParam: events travel by value
	var order []string
	names := make(map[string]string)
	voters := make(map[string][]string)
	for _, b := range e.Ballots {
		if _, ok := voters[b.Target]; !ok {
			order = append(order, b.Target)
		}
		name := b.TargetName
		if name == "" {
			name = b.Target
		}
		if b.Target == model.NoLynch {
			name = "No linchamiento"
		}
		names[b.Target] = name
		voter := b.VoterAlias
		if voter == "" {
			voter = b.Voter
		}
		voters[b.Target] = append(voters[b.Target], voter)
	}

	lines := make([]string, 0, len(order)+1)
	for _, t := range order {
		lines = append(lines, fmt.Sprintf("%s (%d): %s", names[t], len(voters[t]), strings.Join(voters[t], ", ")))
	}
	return append(lines, majorityLine(e))
}

func historyBody(rows []model.HistoryEntry, byVoter bool) []string {
	if len(rows) == 0 {
		return []string{"Sin votos registrados."}
	}
	lines := make([]string, 0, len(rows))
	for _, h := range rows {
		who := h.TargetName
		if who == "" {
			who = h.Target
		}
		if byVoter {
			who = h.VoterAlias
			if who == "" {
				who = h.Voter
			}
		}
		line := fmt.Sprintf("#%d %s", h.PostID, who)
		if h.UnvotedAt > 0 {
			line += fmt.Sprintf(" (retirado en #%d)", h.UnvotedAt)
		}
		lines = append(lines, line)
	}
	return lines
}
