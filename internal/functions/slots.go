package functions

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/haasonsaas/frontdesk/internal/datetime"
	"github.com/haasonsaas/frontdesk/internal/llm"
	"github.com/haasonsaas/frontdesk/internal/lookup"
)

// NoSlotsReply is the result text when the window has no availability.
const NoSlotsReply = "I'm sorry, there are no available appointment slots during that time range."

// SlotArgs are the arguments of check_appt_slots.
type SlotArgs struct {
	StartTime string `json:"start_time"`
	EndTime   string `json:"end_time"`
}

func slotsSpec(now time.Time, loc *time.Location) llm.FunctionSpec {
	ref := datetime.ReferenceStamp(now, loc)
	reference := fmt.Sprintf("For reference, it is currently %s | %s", ref.Lower, ref.Nice)
	return llm.FunctionSpec{
		Name: CheckApptSlots,
		Description: "If the customer wants to know what appointment slots are available between two times, " +
			"use this function to return available appointment times.",
		Parameters: mustParams(map[string]any{
			"type": "object",
			"properties": map[string]any{
				"start_time": map[string]any{
					"type":        "string",
					"format":      "date-time",
					"description": "The start of the time window (ISO 8601 format, e.g., YYYY-MM-DDTHH:MM:SS) " + reference,
				},
				"end_time": map[string]any{
					"type":        "string",
					"format":      "date-time",
					"description": "The end of the time window (ISO 8601 format, e.g., YYYY-MM-DDTHH:MM:SS) " + reference,
				},
			},
			"required": []string{"start_time", "end_time"},
		}),
	}
}

func slotsHandler(lookup SlotLookup, loc *time.Location) func(context.Context, SlotArgs) (string, error) {
	return func(ctx context.Context, args SlotArgs) (string, error) {
		start, err := datetime.ParseInstant(args.StartTime, loc)
		if err != nil {
			return "", &ParseError{Function: CheckApptSlots, Err: fmt.Errorf("start_time %q: %w", args.StartTime, err)}
		}
		end, err := datetime.ParseInstant(args.EndTime, loc)
		if err != nil {
			return "", &ParseError{Function: CheckApptSlots, Err: fmt.Errorf("end_time %q: %w", args.EndTime, err)}
		}
		return FormatSlotsResult(lookup.FetchApptSlots(ctx, start, end), loc), nil
	}
}

// FormatSlotsResult renders available slots for the conversation, with times
// shown in loc.
func FormatSlotsResult(slots []lookup.Slot, loc *time.Location) string {
	if len(slots) == 0 {
		return NoSlotsReply
	}
	times := make([]string, len(slots))
	for i, slot := range slots {
		times[i] = datetime.FormatSlotTime(slot.StartTime, loc)
	}
	return fmt.Sprintf("Here are the corresponding available appointment times: [%s]", strings.Join(times, ", "))
}
