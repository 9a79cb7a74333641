package postgresql

func migrations() map[int]string {
	return map[int]string{
		1: `
			-- Create workflows table
			CREATE TABLE workflows (
				id UUID PRIMARY KEY,
				project_id VARCHAR(255) NOT NULL,
				name VARCHAR(255) NOT NULL,
				trigger_event VARCHAR(255) NOT NULL DEFAULT '',
				enabled BOOLEAN NOT NULL DEFAULT false,
				allow_reentry BOOLEAN NOT NULL DEFAULT false,
				created_at TIMESTAMP WITH TIME ZONE NOT NULL,
				updated_at TIMESTAMP WITH TIME ZONE NOT NULL,
				deleted_at TIMESTAMP WITH TIME ZONE
			);

			CREATE INDEX idx_workflows_project_id ON workflows(project_id);
			CREATE INDEX idx_workflows_trigger_event ON workflows(trigger_event);
			CREATE INDEX idx_workflows_deleted_at ON workflows(deleted_at);

			-- Create workflow_steps table
			CREATE TABLE workflow_steps (
				workflow_id UUID NOT NULL REFERENCES workflows(id) ON DELETE CASCADE,
				id VARCHAR(255) NOT NULL,
				step_type VARCHAR(50) NOT NULL,
				name VARCHAR(255) NOT NULL,
				config JSONB DEFAULT '{}',
				template_id VARCHAR(255),
				PRIMARY KEY (workflow_id, id)
			);

			CREATE INDEX idx_workflow_steps_workflow_id ON workflow_steps(workflow_id);
			CREATE INDEX idx_workflow_steps_type ON workflow_steps(step_type);

			-- Create workflow_transitions table
			CREATE TABLE workflow_transitions (
				workflow_id UUID NOT NULL REFERENCES workflows(id) ON DELETE CASCADE,
				id VARCHAR(255) NOT NULL,
				from_step_id VARCHAR(255) NOT NULL,
				to_step_id VARCHAR(255) NOT NULL,
				branch VARCHAR(50) NOT NULL DEFAULT '',
				priority INT NOT NULL DEFAULT 0,
				PRIMARY KEY (workflow_id, id)
			);

			CREATE INDEX idx_workflow_transitions_from ON workflow_transitions(workflow_id, from_step_id);
			-- One transition per branch tag per step; backstop for the
			-- definition service's validation.
			CREATE UNIQUE INDEX idx_workflow_transitions_branch
				ON workflow_transitions(workflow_id, from_step_id, branch)
				WHERE branch <> '';

			-- Create contacts table
			CREATE TABLE contacts (
				id VARCHAR(255) PRIMARY KEY,
				project_id VARCHAR(255) NOT NULL,
				email VARCHAR(255) NOT NULL,
				first_name VARCHAR(255) NOT NULL DEFAULT '',
				last_name VARCHAR(255) NOT NULL DEFAULT '',
				data JSONB DEFAULT '{}',
				created_at TIMESTAMP WITH TIME ZONE NOT NULL,
				updated_at TIMESTAMP WITH TIME ZONE NOT NULL
			);

			CREATE INDEX idx_contacts_project_id ON contacts(project_id);
			CREATE INDEX idx_contacts_email ON contacts(email);

			-- Create workflow_executions table
			CREATE TABLE workflow_executions (
				id VARCHAR(255) PRIMARY KEY,
				workflow_id UUID NOT NULL REFERENCES workflows(id),
				contact_id VARCHAR(255) NOT NULL,
				status VARCHAR(50) NOT NULL,
				current_step_id VARCHAR(255) NOT NULL,
				context JSONB DEFAULT '{}',
				exit_reason TEXT NOT NULL DEFAULT '',
				error_message TEXT NOT NULL DEFAULT '',
				started_at TIMESTAMP WITH TIME ZONE NOT NULL,
				completed_at TIMESTAMP WITH TIME ZONE
			);

			CREATE INDEX idx_workflow_executions_workflow_id ON workflow_executions(workflow_id);
			CREATE INDEX idx_workflow_executions_contact_id ON workflow_executions(contact_id);
			CREATE INDEX idx_workflow_executions_status ON workflow_executions(status);
			-- At most one running execution per (workflow, contact); the
			-- no-re-entry rule across terminal statuses is enforced by the
			-- execution service.
			CREATE UNIQUE INDEX idx_workflow_executions_running
				ON workflow_executions(workflow_id, contact_id)
				WHERE status = 'running';

			-- Create workflow_step_executions table
			CREATE TABLE workflow_step_executions (
				id VARCHAR(255) PRIMARY KEY,
				execution_id VARCHAR(255) NOT NULL REFERENCES workflow_executions(id) ON DELETE CASCADE,
				step_id VARCHAR(255) NOT NULL,
				status VARCHAR(50) NOT NULL,
				wait_event_name VARCHAR(255) NOT NULL DEFAULT '',
				attempts INT NOT NULL DEFAULT 0,
				error_message TEXT NOT NULL DEFAULT '',
				started_at TIMESTAMP WITH TIME ZONE NOT NULL,
				completed_at TIMESTAMP WITH TIME ZONE,
				UNIQUE (execution_id, step_id)
			);

			CREATE INDEX idx_step_executions_execution_id ON workflow_step_executions(execution_id);
			CREATE INDEX idx_step_executions_waiting
				ON workflow_step_executions(wait_event_name, status)
				WHERE status = 'pending';
		`,
	}
}
