package mcpserver

// TaskFormatContract describes the task fields and values that LLM
// consumers should use when creating or filtering tasks.
const TaskFormatContract = `# CheckTick Task Format

Tasks are kept in one ordered list. Every task has:

| Field       | Values                                    | Default    |
|-------------|-------------------------------------------|------------|
| title       | 1-500 characters, required                |            |
| description | free text                                 | empty      |
| priority    | low, medium, high                         | medium     |
| category    | personal, work, study, health (or custom) | personal   |
| due_date    | YYYY-MM-DD                                | none       |
| recurring   | daily, weekly, monthly                    | none       |

## Rules

1. ` + "`order`" + ` is assigned by the store. New tasks go to the end; use
   move_task to change a position.
2. Completing a recurring task creates its next occurrence with the due date
   advanced by one day, week or month. Subtasks of the new occurrence start
   unchecked.
3. Filters accept ` + "`all`" + ` as a wildcard. Status is ` + "`completed`" + ` or
   ` + "`pending`" + `.
`
