package coach

import "strings"

type topicTips struct {
	topic    string
	keywords []string
	tips     []string
}

// tipTable is consulted in order; the first topic with a matching
// keyword wins.
var tipTable = []topicTips{
	{"stress", []string{"stress", "anxious", "anxiety", "tense", "tension", "panic", "worry"}, []string{
		"Practice deep breathing exercises for 5-10 minutes.",
		"Try gentle neck stretches to relieve tension.",
	}},
	{"sleep", []string{"sleep", "insomnia", "tired", "fatigue", "rest"}, []string{
		"Maintain consistent sleep and wake times.",
		"Create a calm bedtime routine.",
	}},
	{"hydration", []string{"hydrat", "water", "thirst", "drink"}, []string{
		"Sip water slowly and regularly.",
		"Consider electrolyte replacement if needed.",
	}},
	{"triggers", []string{"trigger", "light", "noise", "loud", "screen", "smell"}, []string{
		"Keep a quiet, dark environment.",
		"Avoid bright lights and loud sounds.",
	}},
	{"lifestyle", []string{"lifestyle", "routine", "habit", "meal", "diet", "exercise"}, []string{
		"Maintain regular sleep schedule and meals.",
		"Stay hydrated with small sips of water throughout the day.",
	}},
}

// DefaultTip is used when no topic matches.
const DefaultTip = "Focus on rest, hydration, and a dark quiet environment."

// Topic picks the tip topic for a message, or "" for none.
func Topic(message string) string {
	m := strings.ToLower(message)
	for _, t := range tipTable {
		if containsAny(m, t.keywords) {
			return t.topic
		}
	}
	return ""
}

// Tips returns up to n tips for topic.
func Tips(topic string, n int) []string {
	for _, t := range tipTable {
		if t.topic == topic {
			return t.tips[:min(n, len(t.tips))]
		}
	}
	return []string{DefaultTip}
}
